// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
)

// Object is a writable view over a materialization target: a pointer to a
// struct, or a map with string keys. It hides the difference between the two
// from the engine.
type Object struct {
	target any
	// elem is the addressable struct value, invalid for map targets.
	elem reflect.Value
	// mapv is the map value, invalid for struct targets.
	mapv reflect.Value
	info *Info
}

// Describe wraps a target for property access. Struct targets must be given
// as pointers so that their fields are addressable.
func Describe(target any) (*Object, error) {
	if target == nil {
		return nil, fmt.Errorf("cannot describe nil target")
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, fmt.Errorf("cannot describe nil %s", v.Type())
		}
		elem := v.Elem()
		if elem.Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot describe pointer to %s", elem.Kind())
		}
		info, err := GetInfo(elem.Type())
		if err != nil {
			return nil, err
		}
		return &Object{target: target, elem: elem, info: info}, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot describe map with %s keys", v.Type().Key().Kind())
		}
		return &Object{target: target, mapv: v}, nil
	}
	return nil, fmt.Errorf("cannot describe %s target, need pointer to struct or map", v.Kind())
}

// IsMap reports whether the target is a generic keyed structure.
func (o *Object) IsMap() bool {
	return o.mapv.IsValid()
}

// Target returns the wrapped target object.
func (o *Object) Target() any {
	return o.target
}

// FindProperty resolves a (possibly normalized) column name to the property
// name it would populate, or "" if the target has no such property. Map
// targets accept every name.
func (o *Object) FindProperty(name string, underscoreToCamel bool) string {
	if o.IsMap() {
		return name
	}
	if f, ok := o.info.FindField(name, underscoreToCamel); ok {
		return f.Property()
	}
	return ""
}

// PropertyType returns the declared type of a property. Map targets report
// their element type for every name.
func (o *Object) PropertyType(property string) (reflect.Type, error) {
	if o.IsMap() {
		return o.mapv.Type().Elem(), nil
	}
	f, ok := o.info.FindField(property, false)
	if !ok {
		return nil, fmt.Errorf("type %s has no property %q", o.info.Type, property)
	}
	return f.Type, nil
}

// Get returns the current value of a property.
func (o *Object) Get(property string) (any, error) {
	if o.IsMap() {
		v := o.mapv.MapIndex(reflect.ValueOf(property))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	}
	f, ok := o.info.FindField(property, false)
	if !ok {
		return nil, fmt.Errorf("type %s has no property %q", o.info.Type, property)
	}
	return o.elem.Field(f.Index).Interface(), nil
}

// Set assigns a value to a property. A nil value sets the zero value.
// Pointer values are dereferenced when the property holds the element type,
// and addressable copies are made when the property holds a pointer type.
func (o *Object) Set(property string, value any) error {
	if o.IsMap() {
		ev, err := AdaptValue(value, o.mapv.Type().Elem())
		if err != nil {
			return fmt.Errorf("cannot set %q: %s", property, err)
		}
		o.mapv.SetMapIndex(reflect.ValueOf(property), ev)
		return nil
	}
	f, ok := o.info.FindField(property, false)
	if !ok {
		return fmt.Errorf("type %s has no property %q", o.info.Type, property)
	}
	fv, err := AdaptValue(value, f.Type)
	if err != nil {
		return fmt.Errorf("cannot set %s.%s: %s", o.info.Type, f.Name, err)
	}
	o.elem.Field(f.Index).Set(fv)
	return nil
}

// Append appends a value to a collection property, creating the collection
// if the property currently holds nil.
func (o *Object) Append(property string, value any) error {
	if o.IsMap() {
		cur := o.mapv.MapIndex(reflect.ValueOf(property))
		var slice []any
		if cur.IsValid() && cur.Interface() != nil {
			existing, ok := cur.Interface().([]any)
			if !ok {
				return fmt.Errorf("property %q of map target is not a collection", property)
			}
			slice = existing
		}
		o.mapv.SetMapIndex(reflect.ValueOf(property), reflect.ValueOf(append(slice, value)))
		return nil
	}
	f, ok := o.info.FindField(property, false)
	if !ok {
		return fmt.Errorf("type %s has no property %q", o.info.Type, property)
	}
	if !IsCollection(f.Type) {
		return fmt.Errorf("property %s.%s is not a collection", o.info.Type, f.Name)
	}
	ev, err := AdaptValue(value, f.Type.Elem())
	if err != nil {
		return fmt.Errorf("cannot append to %s.%s: %s", o.info.Type, f.Name, err)
	}
	field := o.elem.Field(f.Index)
	field.Set(reflect.Append(field, ev))
	return nil
}

// EnsureCollection instantiates an empty collection in a property that
// currently holds nil, so that parents whose children never arrive end up
// with an empty collection rather than a null one. Properties that are not
// collection-shaped are left alone.
func (o *Object) EnsureCollection(property string) error {
	if o.IsMap() {
		return nil
	}
	f, ok := o.info.FindField(property, false)
	if !ok || !IsCollection(f.Type) {
		return nil
	}
	field := o.elem.Field(f.Index)
	if field.IsNil() {
		field.Set(reflect.MakeSlice(f.Type, 0, 0))
	}
	return nil
}

// IsCollectionProperty reports whether a property can hold repeated child
// values. Map target properties count once they already hold a []any.
func (o *Object) IsCollectionProperty(property string) bool {
	if o.IsMap() {
		cur := o.mapv.MapIndex(reflect.ValueOf(property))
		if !cur.IsValid() || cur.Interface() == nil {
			return false
		}
		_, ok := cur.Interface().([]any)
		return ok
	}
	f, ok := o.info.FindField(property, false)
	return ok && IsCollection(f.Type)
}

// Instantiate default-constructs a target of the given type: a pointer to a
// zeroed struct, or an empty map.
func Instantiate(t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot instantiate pointer to %s", t.Elem().Kind())
		}
		return reflect.New(t.Elem()).Interface(), nil
	case reflect.Struct:
		return reflect.New(t).Interface(), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot instantiate map with %s keys", t.Key().Kind())
		}
		return reflect.MakeMap(t).Interface(), nil
	}
	return nil, fmt.Errorf("cannot instantiate %s", t)
}

// AdaptValue coerces a value for assignment to a destination type, bridging
// the pointer/value and convertible-numeric gaps between what the engine
// builds and what a target declares.
func AdaptValue(value any, dst reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(dst), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(dst) {
		return v, nil
	}
	// *T into T.
	if v.Kind() == reflect.Pointer && v.Type().Elem().AssignableTo(dst) {
		if v.IsNil() {
			return reflect.Zero(dst), nil
		}
		return v.Elem(), nil
	}
	// T into *T.
	if dst.Kind() == reflect.Pointer && v.Type().AssignableTo(dst.Elem()) {
		p := reflect.New(dst.Elem())
		p.Elem().Set(v)
		return p, nil
	}
	if isNumeric(v.Kind()) && isNumeric(dst.Kind()) && v.Type().ConvertibleTo(dst) {
		return v.Convert(dst), nil
	}
	return reflect.Value{}, fmt.Errorf("value of type %T is not assignable to %s", value, dst)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
