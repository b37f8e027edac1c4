// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"
	"reflect"

	"github.com/canonical/rowgraph/internal/identity"
	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeinfo"
)

// simpleRowValue materializes one object from the current row under a
// mapping with no nested associations.
func (e *Engine) simpleRowValue(w *rowset.Wrapper, m *spec.Mapping, prefix string) (any, error) {
	pending := newPending()
	rowValue, err := e.createRowObject(w, m, pending, prefix)
	if err != nil {
		return nil, err
	}
	if rowValue != nil && !w.TargetIsScalar(m.Type) {
		var obj *typeinfo.Object
		rowValue, obj, err = describeTarget(rowValue)
		if err != nil {
			return nil, &ConfigError{Mapping: m.ID, Detail: err.Error()}
		}
		found := e.usedConstructor
		if e.shouldAutoMap(m, false) {
			ok, err := e.applyAutomatic(w, m, obj, prefix)
			if err != nil {
				return nil, err
			}
			found = ok || found
		}
		ok, err := e.applyProperties(w, m, obj, pending, prefix)
		if err != nil {
			return nil, err
		}
		found = ok || found
		found = pending.Len() > 0 || found
		if !found && !e.config.ReturnInstanceForEmptyRow {
			rowValue = nil
		}
	}
	return e.attachPending(rowValue, pending)
}

// nestedRowValue materializes or refines one object from the current row
// under a mapping with nested associations. When partial is non-nil the row
// only contributes nested values to the already-built object.
func (e *Engine) nestedRowValue(w *rowset.Wrapper, m *spec.Mapping, combined identity.Key, prefix string, partial any) (any, error) {
	if partial != nil {
		obj, err := typeinfo.Describe(partial)
		if err != nil {
			return nil, &ConfigError{Mapping: m.ID, Detail: err.Error()}
		}
		e.ancestors[m.ID] = partial
		_, err = e.applyNested(w, m, obj, prefix, combined, false)
		delete(e.ancestors, m.ID)
		if err != nil {
			return nil, err
		}
		return partial, nil
	}

	pending := newPending()
	rowValue, err := e.createRowObject(w, m, pending, prefix)
	if err != nil {
		return nil, err
	}
	if rowValue != nil && !w.TargetIsScalar(m.Type) {
		var obj *typeinfo.Object
		rowValue, obj, err = describeTarget(rowValue)
		if err != nil {
			return nil, &ConfigError{Mapping: m.ID, Detail: err.Error()}
		}
		found := e.usedConstructor
		if e.shouldAutoMap(m, true) {
			ok, err := e.applyAutomatic(w, m, obj, prefix)
			if err != nil {
				return nil, err
			}
			found = ok || found
		}
		ok, err := e.applyProperties(w, m, obj, pending, prefix)
		if err != nil {
			return nil, err
		}
		found = ok || found
		e.ancestors[m.ID] = rowValue
		ok, err = e.applyNested(w, m, obj, prefix, combined, true)
		delete(e.ancestors, m.ID)
		if err != nil {
			return nil, err
		}
		found = ok || found
		found = pending.Len() > 0 || found
		if !found && !e.config.ReturnInstanceForEmptyRow {
			rowValue = nil
		}
	}
	if combined != identity.NullKey {
		e.partials[combined] = rowValue
	}
	return e.attachPending(rowValue, pending)
}

// createRowObject builds the bare object for the current row, trying the
// creation strategies in order: converter for a scalar target, declared
// constructor bindings, default instantiation, and finally constructor
// signature inference for interface targets.
func (e *Engine) createRowObject(w *rowset.Wrapper, m *spec.Mapping, pending *Pending, prefix string) (any, error) {
	e.usedConstructor = false
	switch {
	case w.TargetIsScalar(m.Type):
		return e.createScalar(w, m, prefix)
	case len(m.Constructor) > 0:
		value, found, err := e.createByConstructor(w, m, prefix)
		if err != nil {
			return nil, err
		}
		e.usedConstructor = found && value != nil
		return value, nil
	case canInstantiate(m.Type):
		return typeinfo.Instantiate(m.Type)
	case m.Type.Kind() == reflect.Interface:
		return e.createBySignature(w, m)
	}
	return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("do not know how to create an instance of %s", m.Type)}
}

// describeTarget wraps the row object for property population. Value
// structs, as produced by constructors, are boxed into a pointer so their
// fields are addressable; the boxed pointer becomes the row object.
func describeTarget(rowValue any) (any, *typeinfo.Object, error) {
	if v := reflect.ValueOf(rowValue); v.Kind() == reflect.Struct {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		rowValue = p.Interface()
	}
	obj, err := typeinfo.Describe(rowValue)
	if err != nil {
		return nil, nil, err
	}
	return rowValue, obj, nil
}

func canInstantiate(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}

// createScalar converts a single column straight into the target value. The
// column is the first bound column when bindings exist, and the result set's
// only column otherwise.
func (e *Engine) createScalar(w *rowset.Wrapper, m *spec.Mapping, prefix string) (any, error) {
	column := ""
	if len(m.Properties) > 0 {
		column = prependPrefix(m.Properties[0].Column, prefix)
	} else if cols := w.Columns(); len(cols) == 1 {
		column = cols[0].Name
	}
	if column == "" {
		return nil, &ConfigError{Mapping: m.ID, Detail: "cannot determine column for scalar target"}
	}
	raw, err := w.Value(column)
	if err != nil {
		return nil, err
	}
	value, err := w.ConverterFor(m.Type, column).Convert(raw)
	if err != nil {
		return nil, &ConversionError{Mapping: m.ID, Column: column, Err: err}
	}
	return value, nil
}

// createByConstructor resolves each declared constructor argument and calls
// a registered constructor whose signature matches the declared argument
// types.
func (e *Engine) createByConstructor(w *rowset.Wrapper, m *spec.Mapping, prefix string) (any, bool, error) {
	args := make([]any, len(m.Constructor))
	types := make([]reflect.Type, len(m.Constructor))
	found := false
	for i, b := range m.Constructor {
		var value any
		var err error
		switch {
		case b.NestedQuery != "":
			value, err = e.constructorQueryValue(w, b, prefix)
		case b.NestedMapping != "":
			value, err = e.constructorNestedValue(w, m, b, prefix)
		default:
			column := prependPrefix(b.Column, prefix)
			raw, rerr := w.Value(column)
			if rerr != nil {
				return nil, false, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("constructor column %q not in result set", column)}
			}
			value, err = e.convertColumn(w, m, b, column, raw)
		}
		if err != nil {
			return nil, false, err
		}
		args[i] = value
		types[i] = b.ArgType
		found = found || value != nil
	}
	if !found {
		return nil, false, nil
	}
	value, err := e.construct(m, types, args)
	return value, found, err
}

func (e *Engine) constructorQueryValue(w *rowset.Wrapper, b *spec.Binding, prefix string) (any, error) {
	if e.queries == nil {
		return nil, &ConfigError{Detail: fmt.Sprintf("nested statement %q requires a query runner", b.NestedQuery)}
	}
	param, err := e.nestedQueryParam(w, b, prefix)
	if err != nil {
		return nil, err
	}
	if param == nil {
		return nil, nil
	}
	// Constructor arguments are needed immediately: lazy resolution does
	// not apply to them.
	result, err := e.queries.Run(b.NestedQuery, param, b.ArgType)
	if err != nil {
		return nil, err
	}
	return e.extractResult(result, b.ArgType, b.Property)
}

func (e *Engine) constructorNestedValue(w *rowset.Wrapper, m *spec.Mapping, b *spec.Binding, prefix string) (any, error) {
	nm, ok := e.registry.Mapping(b.NestedMapping)
	if !ok {
		return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("constructor argument references unregistered mapping %q", b.NestedMapping)}
	}
	dm, err := e.discriminated(w, nm, prefix)
	if err != nil {
		return nil, err
	}
	return e.simpleRowValue(w, dm, combinePrefix(prefix, b.ColumnPrefix))
}

// construct calls the first registered constructor compatible with the
// declared argument types, in registration order.
func (e *Engine) construct(m *spec.Mapping, types []reflect.Type, args []any) (any, error) {
	for _, fn := range e.registry.Constructors(m.Type) {
		if !signatureMatches(fn.Type(), types) {
			continue
		}
		return callConstructor(fn, args)
	}
	return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("no registered constructor for %s matches the declared argument types", m.Type)}
}

// createBySignature builds an interface-shaped target by finding a
// registered constructor whose arity matches the result set's column count
// and whose every parameter has a converter for the corresponding column.
func (e *Engine) createBySignature(w *rowset.Wrapper, m *spec.Mapping) (any, error) {
	columns := w.Columns()
	for _, fn := range e.registry.ConstructorsFor(m.Type) {
		t := fn.Type()
		if t.NumIn() != len(columns) {
			continue
		}
		usable := true
		for i := 0; i < t.NumIn(); i++ {
			if !w.HasConverterFor(t.In(i), columns[i].Name) {
				usable = false
				break
			}
		}
		if !usable {
			continue
		}
		args := make([]any, len(columns))
		for i := 0; i < t.NumIn(); i++ {
			raw, err := w.Value(columns[i].Name)
			if err != nil {
				return nil, err
			}
			value, err := w.ConverterFor(t.In(i), columns[i].Name).Convert(raw)
			if err != nil {
				return nil, &ConversionError{Mapping: m.ID, Column: columns[i].Name, Err: err}
			}
			args[i] = value
		}
		e.usedConstructor = true
		return callConstructor(fn, args)
	}
	return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("no registered constructor can build %s from the result set columns", m.Type)}
}

func signatureMatches(fn reflect.Type, types []reflect.Type) bool {
	if fn.NumIn() != len(types) {
		return false
	}
	for i, t := range types {
		if t == nil {
			continue
		}
		if !t.AssignableTo(fn.In(i)) {
			return false
		}
	}
	return true
}

func callConstructor(fn reflect.Value, args []any) (any, error) {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		fv, err := typeinfo.AdaptValue(arg, fn.Type().In(i))
		if err != nil {
			return nil, fmt.Errorf("constructor argument %d: %s", i, err)
		}
		in[i] = fv
	}
	out := fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// attachPending hands unresolved lazy loads to the object. An object that
// can receive them keeps them for on-demand loading; otherwise a configured
// proxy factory wraps it. With neither available the loads run immediately.
func (e *Engine) attachPending(rowValue any, pending *Pending) (any, error) {
	if rowValue == nil || pending.Len() == 0 {
		return rowValue, nil
	}
	if pr, ok := rowValue.(PendingReceiver); ok {
		pr.AttachPending(pending)
		return rowValue, nil
	}
	if e.proxies != nil {
		return e.proxies.Wrap(rowValue, pending)
	}
	if err := pending.LoadAll(); err != nil {
		return nil, err
	}
	return rowValue, nil
}

// canDefer reports whether lazy loads attached to the object could ever be
// triggered later.
func (e *Engine) canDefer(rowValue any) bool {
	if _, ok := rowValue.(PendingReceiver); ok {
		return true
	}
	return e.proxies != nil
}
