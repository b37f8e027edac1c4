// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"strings"

	"github.com/canonical/rowgraph/internal/identity"
	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
)

// rowKey computes the identity of the current row under a mapping. The key
// folds in the mapping id and the values of the identifying bindings, id
// bindings when declared and all simple bindings otherwise. A key with fewer
// than two contributions cannot identify a row and collapses to NullKey.
func (e *Engine) rowKey(w *rowset.Wrapper, m *spec.Mapping, prefix string) (identity.Key, error) {
	key := identity.NullKey.Update("mapping", m.ID)
	bindings := m.IDBindings
	if len(bindings) == 0 {
		bindings = simpleBindings(m)
	}
	if len(bindings) > 0 {
		var err error
		key, err = e.mappedKey(w, m, key, bindings, prefix)
		if err != nil {
			return identity.NullKey, err
		}
	} else {
		key = e.unmappedKey(w, m, key, prefix)
	}
	if !key.Identifiable() {
		return identity.NullKey, nil
	}
	return key, nil
}

func simpleBindings(m *spec.Mapping) []*spec.Binding {
	var simple []*spec.Binding
	for _, b := range m.Properties {
		if b.Simple() {
			simple = append(simple, b)
		}
	}
	return simple
}

func (e *Engine) mappedKey(w *rowset.Wrapper, m *spec.Mapping, key identity.Key, bindings []*spec.Binding, prefix string) (identity.Key, error) {
	for _, b := range bindings {
		if b.NestedMapping != "" || b.Column == "" {
			continue
		}
		column := prependPrefix(b.Column, prefix)
		if !w.Has(column) {
			continue
		}
		raw, err := w.Value(column)
		if err != nil {
			return identity.NullKey, err
		}
		value, err := e.convertColumn(w, m, b, column, raw)
		if err != nil {
			return identity.NullKey, err
		}
		if value != nil || e.config.ReturnInstanceForEmptyRow {
			key = key.Update(column, value)
		}
	}
	return key, nil
}

// unmappedKey identifies a row without bindings by every result set column
// the target type can receive, matching automatic mapping's name rules.
func (e *Engine) unmappedKey(w *rowset.Wrapper, m *spec.Mapping, key identity.Key, prefix string) identity.Key {
	upperPrefix := strings.ToUpper(prefix)
	for _, column := range w.UnmappedColumns(m, prefix) {
		property := column
		if upperPrefix != "" {
			if !strings.HasPrefix(strings.ToUpper(column), upperPrefix) {
				continue
			}
			property = column[len(upperPrefix):]
		}
		if !e.targetHasProperty(m, property) {
			continue
		}
		raw, err := w.Value(column)
		if err != nil || raw == nil {
			continue
		}
		key = key.Update(strings.ToUpper(column), raw)
	}
	return key
}

// convertColumn applies the binding's value conversion: the binding's own
// converter first, the registry converter for its declared type next, and a
// passthrough when the target type is not declared.
func (e *Engine) convertColumn(w *rowset.Wrapper, m *spec.Mapping, b *spec.Binding, column string, raw any) (any, error) {
	conv := b.Converter
	if conv == nil && b.ArgType != nil {
		conv = w.ConverterFor(b.ArgType, column)
	}
	if conv == nil {
		conv = typeconv.Passthrough
	}
	value, err := conv.Convert(raw)
	if err != nil {
		return nil, &ConversionError{Mapping: m.ID, Column: column, Property: b.Property, Err: err}
	}
	return value, nil
}
