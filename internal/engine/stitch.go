// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"strings"

	"github.com/canonical/rowgraph/internal/identity"
	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeinfo"
)

// applyNested stitches the row's nested association values into the parent
// object. Child identity is combined with the parent's so that equal
// children under different parents stay distinct.
func (e *Engine) applyNested(w *rowset.Wrapper, m *spec.Mapping, obj *typeinfo.Object, parentPrefix string, parentKey identity.Key, newObject bool) (bool, error) {
	found := false
	for _, b := range m.Properties {
		if b.NestedMapping == "" || b.ResultSet != "" {
			continue
		}
		prefix := combinePrefix(parentPrefix, b.ColumnPrefix)
		nm, ok := e.registry.Mapping(b.NestedMapping)
		if !ok {
			continue
		}
		dm, err := e.discriminated(w, nm, prefix)
		if err != nil {
			return false, err
		}
		// A self-referencing mapping with no column prefix would read the
		// parent's own columns again. Link back to the in-flight ancestor
		// instead of recursing.
		if b.ColumnPrefix == "" {
			if ancestor, ok := e.ancestors[dm.ID]; ok {
				if newObject {
					if err := link(obj, b, ancestor); err != nil {
						return false, &ConfigError{Mapping: m.ID, Detail: err.Error()}
					}
				}
				continue
			}
		}
		present, err := e.associationPresent(w, b, prefix)
		if err != nil {
			return false, err
		}
		if !present {
			continue
		}
		childKey, err := e.rowKey(w, dm, prefix)
		if err != nil {
			return false, err
		}
		combined := identity.Combine(childKey, parentKey)
		var known any
		if combined != identity.NullKey {
			known = e.partials[combined]
		}
		value, err := e.nestedRowValue(w, dm, combined, prefix, known)
		if err != nil {
			return false, err
		}
		if value != nil && known == nil {
			if err := link(obj, b, value); err != nil {
				return false, &ConfigError{Mapping: m.ID, Detail: err.Error()}
			}
			found = true
		}
	}
	return found, nil
}

// associationPresent decides whether the row carries the association at all.
// Declared not-null columns are authoritative; without them, a prefixed
// association is present when the result set has any prefixed column, and an
// unprefixed one is always attempted.
func (e *Engine) associationPresent(w *rowset.Wrapper, b *spec.Binding, prefix string) (bool, error) {
	if len(b.NotNullColumns) > 0 {
		for _, column := range b.NotNullColumns {
			raw, err := w.Value(prependPrefix(column, prefix))
			if err != nil {
				return false, err
			}
			if raw != nil {
				return true, nil
			}
		}
		return false, nil
	}
	if prefix != "" {
		upper := strings.ToUpper(prefix)
		for _, column := range w.Columns() {
			if strings.HasPrefix(strings.ToUpper(column.Name), upper) {
				return true, nil
			}
		}
		return false, nil
	}
	return true, nil
}

// link attaches a child value to its parent property: collection properties
// accumulate, scalar properties take the value once.
func link(obj *typeinfo.Object, b *spec.Binding, value any) error {
	if obj.IsCollectionProperty(b.Property) {
		if err := obj.EnsureCollection(b.Property); err != nil {
			return err
		}
		return obj.Append(b.Property, value)
	}
	return obj.Set(b.Property, value)
}
