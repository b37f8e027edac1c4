// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"

	"github.com/canonical/rowgraph/internal/identity"
	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeinfo"
)

// pendingRelation is one parent object waiting for rows of a supplemental
// result set.
type pendingRelation struct {
	obj     *typeinfo.Object
	binding *spec.Binding
}

// addPendingRelation registers the owning object to receive values from the
// binding's supplemental result set. The relation is keyed by the join
// column values of the owning row. Collection properties are instantiated
// immediately so that owners whose children never arrive hold an empty
// collection.
func (e *Engine) addPendingRelation(w *rowset.Wrapper, obj *typeinfo.Object, b *spec.Binding, prefix string) error {
	key, err := e.multiResultKey(w, b, b.JoinColumns, prefix)
	if err != nil {
		return err
	}
	e.pendingRelations[key] = append(e.pendingRelations[key], pendingRelation{obj: obj, binding: b})
	previous, ok := e.nextResultSets[b.ResultSet]
	if !ok {
		e.nextResultSets[b.ResultSet] = b
	} else if previous != b {
		return &ConfigError{Detail: fmt.Sprintf("two different properties are mapped to result set %q", b.ResultSet)}
	}
	if err := obj.EnsureCollection(b.Property); err != nil {
		return &ConfigError{Detail: err.Error()}
	}
	return nil
}

// linkToParents attaches a supplemental result set row value to every owner
// whose join key matches the row's foreign columns.
func (e *Engine) linkToParents(w *rowset.Wrapper, parent *spec.Binding, value any) error {
	key, err := e.multiResultKey(w, parent, parent.ForeignColumns, "")
	if err != nil {
		return err
	}
	for _, relation := range e.pendingRelations[key] {
		if value == nil {
			continue
		}
		if err := link(relation.obj, relation.binding, value); err != nil {
			return &ConfigError{Detail: err.Error()}
		}
	}
	return nil
}

// multiResultKey builds the cross-result-set join key: the binding's result
// set and property identify the relation, and each join column name is
// paired with the value read from the given row columns. JoinColumns supply
// both names and values on the owning side; on the supplemental side the
// names still come from JoinColumns but the values from ForeignColumns.
func (e *Engine) multiResultKey(w *rowset.Wrapper, b *spec.Binding, columns []string, prefix string) (identity.Key, error) {
	key := identity.NullKey.Update("resultset", b.ResultSet+":"+b.Property)
	for i, name := range b.JoinColumns {
		if i >= len(columns) {
			break
		}
		raw, err := w.Value(prependPrefix(columns[i], prefix))
		if err != nil {
			return identity.NullKey, err
		}
		if raw == nil {
			continue
		}
		key = key.Update(name, stringify(raw))
	}
	return key, nil
}

// stringify renders a join column value in a driver-independent form, so
// that the owning row and the supplemental row produce the same key even
// when their drivers return different Go types for the same column.
func stringify(raw any) string {
	switch v := raw.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	return fmt.Sprintf("%v", raw)
}
