// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package spec holds the compiled form of the declarative mapping
// specifications. A Mapping is built once at configuration time and is
// read-only afterwards: many rows, and many query executions, are processed
// against the same Mapping.
package spec

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/canonical/rowgraph/internal/typeconv"
)

// AutoBehavior is the engine-wide default for automatic column mapping.
type AutoBehavior int

const (
	// AutoNone disables automatic mapping everywhere.
	AutoNone AutoBehavior = iota
	// AutoPartial enables automatic mapping except inside nested mappings.
	AutoPartial
	// AutoFull enables automatic mapping everywhere.
	AutoFull
)

// AutoOverride is a per-mapping override of the engine default.
type AutoOverride int

const (
	AutoDefault AutoOverride = iota
	AutoOn
	AutoOff
)

// Composite names a column whose value feeds one property of a nested query
// parameter object.
type Composite struct {
	Property string
	Column   string
}

// Binding is one compiled column-to-property rule of a Mapping.
type Binding struct {
	// Column is the source column, before any prefixing.
	Column string
	// Property is the target property path on the materialized object.
	Property string
	// ID marks the binding as identity-bearing.
	ID bool
	// Converter overrides the registry converter for this binding.
	Converter typeconv.Converter
	// ArgType is the declared value type of a constructor argument.
	ArgType reflect.Type
	// NestedMapping is the id of the mapping used to materialize an
	// embedded object from columns of the same row.
	NestedMapping string
	// ColumnPrefix scopes the nested mapping to prefixed columns.
	ColumnPrefix string
	// NotNullColumns guard the nested association: the association is only
	// materialized when at least one of them is non-null in the row.
	NotNullColumns []string
	// NestedQuery is the id of a statement run to resolve this value.
	NestedQuery string
	// Composites feed the nested query's parameter object from columns.
	Composites []Composite
	// Lazy defers nested query resolution to first property access.
	Lazy bool
	// ResultSet names the supplemental result set that carries this
	// association's rows.
	ResultSet string
	// JoinColumns and ForeignColumns are the paired join key columns for a
	// ResultSet binding: JoinColumns are read from the owning row,
	// ForeignColumns from the supplemental result set's rows.
	JoinColumns    []string
	ForeignColumns []string
}

// Simple reports whether the binding is a plain column-to-property
// assignment with no nested machinery attached.
func (b *Binding) Simple() bool {
	return b.NestedMapping == "" && b.NestedQuery == "" && b.ResultSet == "" && len(b.Composites) == 0
}

// Discriminator selects the effective sub-mapping for a row from the value
// of one column.
type Discriminator struct {
	Column string
	// Cases maps the column value, rendered as a string, to a mapping id.
	Cases map[string]string
}

// Mapping is a compiled mapping specification.
type Mapping struct {
	// ID is the stable identifier of the mapping.
	ID string
	// Type is the target type: a struct, a string-keyed map, or a scalar.
	Type reflect.Type
	// Constructor holds the ordered constructor argument bindings.
	Constructor []*Binding
	// Properties holds the ordered property bindings.
	Properties []*Binding
	// IDBindings are the identity-bearing property bindings, in
	// declaration order.
	IDBindings []*Binding
	// Discriminator, if set, redirects rows to sub-mappings.
	Discriminator *Discriminator
	// Auto overrides the engine's automatic mapping behaviour.
	Auto AutoOverride
	// ResultOrdered declares that rows arrive grouped by parent identity,
	// allowing completed parents to be flushed eagerly.
	ResultOrdered bool

	// MappedColumns is the set of upper-cased column names claimed by
	// explicit bindings.
	MappedColumns map[string]bool
	// MappedProperties is the set of properties claimed by explicit
	// bindings, never to be overwritten by automatic mapping.
	MappedProperties map[string]bool
	// HasNested reports whether any property binding joins a nested
	// mapping from the same result set.
	HasNested bool
}

// Finish derives the lookup sets after the bindings are in place.
func (m *Mapping) Finish() {
	m.MappedColumns = make(map[string]bool)
	m.MappedProperties = make(map[string]bool)
	all := make([]*Binding, 0, len(m.Constructor)+len(m.Properties))
	all = append(all, m.Constructor...)
	all = append(all, m.Properties...)
	for _, b := range all {
		if b.Column != "" {
			m.MappedColumns[strings.ToUpper(b.Column)] = true
		}
		for _, comp := range b.Composites {
			m.MappedColumns[strings.ToUpper(comp.Column)] = true
		}
		if b.Property != "" {
			m.MappedProperties[b.Property] = true
		}
		if b.ID {
			m.IDBindings = append(m.IDBindings, b)
		}
		if b.NestedMapping != "" && b.ResultSet == "" {
			m.HasNested = true
		}
	}
	if m.Discriminator != nil && m.Discriminator.Column != "" {
		m.MappedColumns[strings.ToUpper(m.Discriminator.Column)] = true
	}
}

// Registry holds the compiled mappings and registered constructors of a
// schema. Reads vastly outnumber writes: registration happens once at
// configuration time.
type Registry struct {
	mu           sync.RWMutex
	mappings     map[string]*Mapping
	constructors map[reflect.Type][]reflect.Value
}

func NewRegistry() *Registry {
	return &Registry{
		mappings:     make(map[string]*Mapping),
		constructors: make(map[reflect.Type][]reflect.Value),
	}
}

// Add registers a compiled mapping under its id.
func (r *Registry) Add(m *Mapping) error {
	if m.ID == "" {
		return fmt.Errorf("mapping has no id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[m.ID]; ok {
		return fmt.Errorf("mapping %q already registered", m.ID)
	}
	r.mappings[m.ID] = m
	return nil
}

// Mapping looks a mapping up by id.
func (r *Registry) Mapping(id string) (*Mapping, bool) {
	r.mu.RLock()
	m, ok := r.mappings[id]
	r.mu.RUnlock()
	return m, ok
}

// RegisterConstructor registers a constructor function for its result type.
// The function must return the constructed value, optionally followed by an
// error.
func (r *Registry) RegisterConstructor(fn any) error {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if v.Kind() != reflect.Func {
		return fmt.Errorf("constructor must be a function, got %T", fn)
	}
	if t.IsVariadic() {
		return fmt.Errorf("constructor cannot be variadic")
	}
	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
			return fmt.Errorf("constructor's second return value must be error, got %s", t.Out(1))
		}
	default:
		return fmt.Errorf("constructor must return a value and an optional error")
	}
	result := t.Out(0)
	r.mu.Lock()
	r.constructors[result] = append(r.constructors[result], v)
	r.mu.Unlock()
	return nil
}

// Constructors returns the constructor functions registered for a type, in
// registration order. For a pointer type the constructors registered for
// both the pointer and its element type are returned.
func (r *Registry) Constructors(t reflect.Type) []reflect.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := r.constructors[t]
	if t.Kind() == reflect.Pointer {
		fns = append(fns[:len(fns):len(fns)], r.constructors[t.Elem()]...)
	} else {
		fns = append(fns[:len(fns):len(fns)], r.constructors[reflect.PointerTo(t)]...)
	}
	return fns
}

// ConstructorsFor returns the constructors whose results are assignable to
// an interface target type. Used by signature inference for interface-shaped
// targets.
func (r *Registry) ConstructorsFor(iface reflect.Type) []reflect.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var fns []reflect.Value
	for result, list := range r.constructors {
		if result.AssignableTo(iface) {
			fns = append(fns, list...)
		}
	}
	return fns
}
