// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"github.com/canonical/rowgraph/internal/engine"
)

// LazyProperties is an embeddable holder for properties resolved through
// lazy nested statement bindings. A target type that embeds it receives its
// deferred loads when materialized:
//
//	type Order struct {
//	    rowgraph.LazyProperties
//	    ID    int `db:"id"`
//	    Lines []Line
//	}
//
// The first call to Load for a property runs the nested statement and
// assigns the result; later calls are no-ops. Without the embedding, and
// without a [ProxyFactory] on the schema, lazy bindings load eagerly.
type LazyProperties struct {
	pending *engine.Pending
}

// AttachPending hands the holder its deferred loads. It is called during
// materialization and is not meant to be called by applications.
func (l *LazyProperties) AttachPending(p *engine.Pending) {
	l.pending = p
}

// Load resolves the named property now. Loading a property that is not
// pending, or loading before any materialization, is a no-op.
func (l *LazyProperties) Load(property string) error {
	if l == nil || l.pending == nil {
		return nil
	}
	return l.pending.Load(property)
}

// LoadAll resolves every pending property.
func (l *LazyProperties) LoadAll() error {
	if l == nil || l.pending == nil {
		return nil
	}
	return l.pending.LoadAll()
}

// Loaded reports whether the named property has its value, either because
// it was loaded or because it was never deferred.
func (l *LazyProperties) Loaded(property string) bool {
	if l == nil || l.pending == nil {
		return true
	}
	return !l.pending.Has(property)
}
