// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"sort"
	"sync"
)

// A loader resolves one deferred property value and assigns it to its
// target.
type loader struct {
	load   func() (any, error)
	assign func(value any) error
}

// Pending is the set of not-yet-loaded properties of one materialized
// object. First access to a property loads it; the mutex serializes
// concurrent first touches from multiple goroutines holding the same
// object.
type Pending struct {
	mu      sync.Mutex
	loaders map[string]loader
}

func newPending() *Pending {
	return &Pending{loaders: make(map[string]loader)}
}

func (p *Pending) add(property string, load func() (any, error), assign func(value any) error) {
	p.mu.Lock()
	p.loaders[property] = loader{load: load, assign: assign}
	p.mu.Unlock()
}

// Len returns the number of properties still awaiting their value.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loaders)
}

// Has reports whether the named property is still awaiting its value.
func (p *Pending) Has(property string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loaders[property]
	return ok
}

// Load resolves the named property now. Loading a property that is not
// pending is a no-op, so racing first touches see exactly one load.
func (p *Pending) Load(property string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.loaders[property]
	if !ok {
		return nil
	}
	delete(p.loaders, property)
	value, err := l.load()
	if err != nil {
		return err
	}
	return l.assign(value)
}

// LoadAll resolves every pending property, in property name order for
// deterministic failure reporting.
func (p *Pending) LoadAll() error {
	p.mu.Lock()
	properties := make([]string, 0, len(p.loaders))
	for property := range p.loaders {
		properties = append(properties, property)
	}
	p.mu.Unlock()
	sort.Strings(properties)
	for _, property := range properties {
		if err := p.Load(property); err != nil {
			return err
		}
	}
	return nil
}

// PendingReceiver is the capability a target type exposes to take ownership
// of its deferred properties. Targets typically gain it by embedding the
// public LazyProperties holder.
type PendingReceiver interface {
	AttachPending(p *Pending)
}

// ProxyFactory wraps materialized objects that carry deferred properties, so
// that first access can trigger the load. It stands in for runtime proxy
// generation.
type ProxyFactory interface {
	Wrap(target any, pending *Pending) (any, error)
}
