// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
	"github.com/canonical/rowgraph/internal/typeinfo"
)

// deferred marks a property whose value arrives later: through a lazy load,
// a cached nested statement, or a supplemental result set.
var deferred = &struct{ name string }{"deferred"}

// applyProperties populates the object from the mapping's explicit property
// bindings and reports whether any of them produced a value.
func (e *Engine) applyProperties(w *rowset.Wrapper, m *spec.Mapping, obj *typeinfo.Object, pending *Pending, prefix string) (bool, error) {
	found := false
	for _, b := range m.Properties {
		if b.NestedMapping != "" && b.ResultSet == "" {
			// Stitched from the same result set by the nested pass.
			continue
		}
		column := prependPrefix(b.Column, prefix)
		handled := len(b.Composites) > 0 || b.ResultSet != "" ||
			(column != "" && w.IsMapped(m, prefix, column))
		if !handled || b.Property == "" {
			continue
		}
		value, err := e.propertyValue(w, m, b, obj, pending, prefix)
		if err != nil {
			return false, err
		}
		if value == deferred {
			found = true
			continue
		}
		if value != nil {
			found = true
		}
		if value != nil || (e.config.CallSettersOnNull && nullable(obj, b.Property)) {
			if err := obj.Set(b.Property, value); err != nil {
				return false, &ConfigError{Mapping: m.ID, Detail: err.Error()}
			}
		}
	}
	return found, nil
}

// propertyValue resolves one property binding against the current row.
func (e *Engine) propertyValue(w *rowset.Wrapper, m *spec.Mapping, b *spec.Binding, obj *typeinfo.Object, pending *Pending, prefix string) (any, error) {
	switch {
	case b.NestedQuery != "":
		return e.nestedQueryPropertyValue(w, m, b, obj, pending, prefix)
	case b.ResultSet != "":
		if err := e.addPendingRelation(w, obj, b, prefix); err != nil {
			return nil, err
		}
		return deferred, nil
	}
	column := prependPrefix(b.Column, prefix)
	raw, err := w.Value(column)
	if err != nil {
		return nil, err
	}
	conv := b.Converter
	if conv == nil {
		if t, terr := obj.PropertyType(b.Property); terr == nil {
			conv = w.ConverterFor(t, column)
		} else {
			conv = typeconv.Passthrough
		}
	}
	value, err := conv.Convert(raw)
	if err != nil {
		return nil, &ConversionError{Mapping: m.ID, Column: column, Property: b.Property, Err: err}
	}
	return value, nil
}

// nestedQueryPropertyValue resolves a property through a nested statement:
// deferring to the runner's cache when the result is already in flight,
// recording a lazy load when the binding asks for one and the object can
// carry it, and running the statement eagerly otherwise.
func (e *Engine) nestedQueryPropertyValue(w *rowset.Wrapper, m *spec.Mapping, b *spec.Binding, obj *typeinfo.Object, pending *Pending, prefix string) (any, error) {
	if e.queries == nil {
		return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("nested statement %q requires a query runner", b.NestedQuery)}
	}
	param, err := e.nestedQueryParam(w, b, prefix)
	if err != nil {
		return nil, err
	}
	if param == nil {
		return nil, nil
	}
	target, err := obj.PropertyType(b.Property)
	if err != nil {
		return nil, &ConfigError{Mapping: m.ID, Detail: err.Error()}
	}
	property := b.Property
	queryID := b.NestedQuery
	if e.queries.Cached(queryID, param) {
		err := e.queries.DeferToCache(queryID, param, func(value any) error {
			shaped, err := e.extractResult(value, target, property)
			if err != nil {
				return err
			}
			return obj.Set(property, shaped)
		})
		if err != nil {
			return nil, err
		}
		return deferred, nil
	}
	load := func() (any, error) {
		result, err := e.queries.Run(queryID, param, target)
		if err != nil {
			return nil, err
		}
		return e.extractResult(result, target, property)
	}
	if b.Lazy && e.canDefer(obj.Target()) {
		pending.add(property, load, func(value any) error {
			return obj.Set(property, value)
		})
		return deferred, nil
	}
	value, err := load()
	if err != nil {
		return nil, err
	}
	return value, nil
}

// nestedQueryParam builds the parameter for a nested statement from the
// current row. A single-column binding passes the converted column value; a
// composite binding fills a map parameter, one entry per composite column.
// A parameter whose every source column is null is nil, which skips the
// statement.
func (e *Engine) nestedQueryParam(w *rowset.Wrapper, b *spec.Binding, prefix string) (any, error) {
	if len(b.Composites) == 0 {
		column := prependPrefix(b.Column, prefix)
		raw, err := w.Value(column)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	param := make(map[string]any, len(b.Composites))
	found := false
	for _, comp := range b.Composites {
		raw, err := w.Value(prependPrefix(comp.Column, prefix))
		if err != nil {
			return nil, err
		}
		param[comp.Property] = raw
		found = found || raw != nil
	}
	if !found {
		return nil, nil
	}
	return param, nil
}

// extractResult shapes a nested statement's result to the receiving
// property: multi-value results fill collection properties, while scalar
// properties accept exactly zero or one value.
func (e *Engine) extractResult(result any, target reflect.Type, property string) (any, error) {
	list, ok := result.([]any)
	if !ok {
		return result, nil
	}
	if target != nil && typeinfo.IsCollection(target) {
		slice := reflect.MakeSlice(target, 0, len(list))
		for _, item := range list {
			ev, err := typeinfo.AdaptValue(item, target.Elem())
			if err != nil {
				return nil, fmt.Errorf("cannot collect statement result into %s: %s", target, err)
			}
			slice = reflect.Append(slice, ev)
		}
		return slice.Interface(), nil
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, &CardinalityError{Property: property, Count: len(list)}
}

// autoColumn is one entry of a cached automatic mapping plan.
type autoColumn struct {
	column   string
	property string
	conv     typeconv.Converter
	nullable bool
}

// applyAutomatic maps the columns no explicit binding claims onto properties
// with matching names. The plan is computed once per mapping and prefix for
// the result set and reused row by row.
func (e *Engine) applyAutomatic(w *rowset.Wrapper, m *spec.Mapping, obj *typeinfo.Object, prefix string) (bool, error) {
	planKey := m.ID + ":" + strings.ToUpper(prefix)
	plan, ok := e.autoPlans[planKey]
	if !ok {
		plan = e.autoPlan(w, m, obj, prefix)
		e.autoPlans[planKey] = plan
	}
	found := false
	for _, a := range plan {
		raw, err := w.Value(a.column)
		if err != nil {
			return false, err
		}
		value, err := a.conv.Convert(raw)
		if err != nil {
			return false, &ConversionError{Mapping: m.ID, Column: a.column, Property: a.property, Err: err}
		}
		if value != nil {
			found = true
		}
		if value != nil || (e.config.CallSettersOnNull && a.nullable) {
			if err := obj.Set(a.property, value); err != nil {
				return false, &ConfigError{Mapping: m.ID, Detail: err.Error()}
			}
		}
	}
	return found, nil
}

func (e *Engine) autoPlan(w *rowset.Wrapper, m *spec.Mapping, obj *typeinfo.Object, prefix string) []autoColumn {
	var plan []autoColumn
	upperPrefix := strings.ToUpper(prefix)
	for _, column := range w.UnmappedColumns(m, prefix) {
		name := column
		if upperPrefix != "" {
			if !strings.HasPrefix(strings.ToUpper(column), upperPrefix) {
				continue
			}
			name = column[len(upperPrefix):]
		}
		property := obj.FindProperty(name, e.config.MapUnderscoreToCamel)
		if property == "" || m.MappedProperties[property] {
			continue
		}
		conv := typeconv.Passthrough
		canNull := true
		if t, err := obj.PropertyType(property); err == nil {
			conv = w.ConverterFor(t, column)
			canNull = isNullableType(t)
		}
		plan = append(plan, autoColumn{column: column, property: property, conv: conv, nullable: canNull})
	}
	return plan
}

// nullable reports whether a property can meaningfully receive a null: its
// type has a nil form, or the target is a generic map.
func nullable(obj *typeinfo.Object, property string) bool {
	if obj.IsMap() {
		return true
	}
	t, err := obj.PropertyType(property)
	if err != nil {
		return false
	}
	return isNullableType(t)
}

func isNullableType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// targetHasProperty reports whether the mapping's target type has a
// property matching the (prefix-stripped) column name.
func (e *Engine) targetHasProperty(m *spec.Mapping, name string) bool {
	t := m.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Map {
		return true
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	info, err := typeinfo.GetInfo(t)
	if err != nil {
		return false
	}
	_, ok := info.FindField(name, e.config.MapUnderscoreToCamel)
	return ok
}
