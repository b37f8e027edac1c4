// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeinfo"
)

// Mapping declares how rows of a result set become values of one target
// type. Mappings are registered on a [Schema] and referenced by id.
type Mapping struct {
	// ID is the name the mapping is registered and referenced under.
	ID string
	// Type is a sample value of the target type: a struct, a pointer to a
	// struct, a string-keyed map, or a scalar for single-column results.
	Type any
	// Constructor declares the ordered constructor arguments. A mapping
	// with constructor bindings builds its values through a constructor
	// function registered with [Schema.RegisterConstructor].
	Constructor []Binding
	// Bindings declares the property bindings.
	Bindings []Binding
	// Discriminator, if set, redirects each row to a sub-mapping selected
	// by a column value.
	Discriminator *Discriminator
	// Auto overrides the schema's automatic mapping behaviour for this
	// mapping.
	Auto Auto
	// ResultOrdered declares that rows arrive grouped by this mapping's
	// identity, letting completed values be delivered before the result
	// set is exhausted.
	ResultOrdered bool
}

// Binding declares how one property of the target gets its value.
type Binding struct {
	// Column is the source column. For a ResultSet binding it is a comma
	// separated list of the owning row's join columns.
	Column string
	// Property is the property to populate. Struct properties are matched
	// by db tag or field name, case-insensitively.
	Property string
	// ID marks the binding as part of the row identity.
	ID bool
	// Converter overrides the registered converter for this binding.
	Converter Converter
	// ArgType is a sample value of a constructor argument's type. Required
	// on constructor bindings.
	ArgType any
	// Mapping is the id of the mapping that materializes this property
	// from columns of the same row, or from the rows of ResultSet.
	Mapping string
	// Prefix scopes the nested mapping to columns carrying the prefix.
	Prefix string
	// NotNull is a comma separated list of columns, at least one of which
	// must be non-null for the nested value to be materialized.
	NotNull string
	// Query is the id of a statement run to resolve this property.
	Query string
	// Composites feed a multi-column parameter for Query.
	Composites []Composite
	// Lazy defers running Query until the property is first loaded.
	Lazy bool
	// ResultSet names the supplemental result set carrying this
	// property's rows.
	ResultSet string
	// ForeignColumns is a comma separated list of the supplemental result
	// set's columns matched pairwise against Column.
	ForeignColumns string
}

// Composite pairs a column of the current row with a property of a nested
// statement's parameter.
type Composite struct {
	Property string
	Column   string
}

// Discriminator selects a sub-mapping per row from the value of one column.
type Discriminator struct {
	// Column is the column whose value is inspected.
	Column string
	// Cases maps column values to mapping ids. A value with no case keeps
	// the declaring mapping.
	Cases map[string]string
}

// Auto is a per-mapping override of the schema's automatic mapping
// behaviour.
type Auto int

const (
	// AutoDefault applies the schema's behaviour.
	AutoDefault Auto = iota
	// AutoEnabled maps unclaimed columns onto matching properties even if
	// the schema would not.
	AutoEnabled
	// AutoDisabled turns automatic mapping off for this mapping.
	AutoDisabled
)

// AutoMapping is the schema-wide automatic mapping behaviour.
type AutoMapping int

const (
	// AutoMapPartial maps unclaimed columns everywhere except inside
	// nested mappings. This is the default.
	AutoMapPartial AutoMapping = iota
	// AutoMapNone disables automatic mapping.
	AutoMapNone
	// AutoMapFull maps unclaimed columns inside nested mappings too.
	AutoMapFull
)

// compile validates the declared mapping and builds its internal form.
func compileMapping(m Mapping) (*spec.Mapping, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("cannot compile mapping: no id")
	}
	if m.Type == nil {
		return nil, fmt.Errorf("cannot compile mapping %q: no target type", m.ID)
	}
	target := reflect.TypeOf(m.Type)
	if err := validateTarget(m.ID, target); err != nil {
		return nil, err
	}
	compiled := &spec.Mapping{
		ID:            m.ID,
		Type:          target,
		ResultOrdered: m.ResultOrdered,
	}
	switch m.Auto {
	case AutoEnabled:
		compiled.Auto = spec.AutoOn
	case AutoDisabled:
		compiled.Auto = spec.AutoOff
	}
	for i := range m.Constructor {
		b, err := compileBinding(m.ID, &m.Constructor[i], i, true)
		if err != nil {
			return nil, err
		}
		compiled.Constructor = append(compiled.Constructor, b)
	}
	for i := range m.Bindings {
		b, err := compileBinding(m.ID, &m.Bindings[i], i, false)
		if err != nil {
			return nil, err
		}
		if err := validateProperty(m.ID, target, b.Property); err != nil {
			return nil, err
		}
		compiled.Properties = append(compiled.Properties, b)
	}
	if m.Discriminator != nil {
		if m.Discriminator.Column == "" {
			return nil, fmt.Errorf("cannot compile mapping %q: discriminator has no column", m.ID)
		}
		if len(m.Discriminator.Cases) == 0 {
			return nil, fmt.Errorf("cannot compile mapping %q: discriminator has no cases", m.ID)
		}
		compiled.Discriminator = &spec.Discriminator{
			Column: m.Discriminator.Column,
			Cases:  m.Discriminator.Cases,
		}
	}
	compiled.Finish()
	return compiled, nil
}

func compileBinding(mappingID string, b *Binding, index int, constructor bool) (*spec.Binding, error) {
	out := &spec.Binding{
		Property:      b.Property,
		ID:            b.ID,
		Converter:     b.Converter,
		NestedMapping: b.Mapping,
		ColumnPrefix:  b.Prefix,
		NestedQuery:   b.Query,
		Lazy:          b.Lazy,
		ResultSet:     b.ResultSet,
	}
	if b.ArgType != nil {
		out.ArgType = reflect.TypeOf(b.ArgType)
	}
	if constructor && out.ArgType == nil {
		return nil, fmt.Errorf("cannot compile mapping %q: constructor binding %d has no ArgType", mappingID, index)
	}
	if !constructor && b.Property == "" {
		return nil, fmt.Errorf("cannot compile mapping %q: binding on column %q has no property", mappingID, b.Column)
	}
	if b.NotNull != "" {
		out.NotNullColumns = splitColumns(b.NotNull)
	}
	for _, comp := range b.Composites {
		if b.Query == "" {
			return nil, fmt.Errorf("cannot compile mapping %q: property %q declares composites without a query", mappingID, b.Property)
		}
		if comp.Property == "" || comp.Column == "" {
			return nil, fmt.Errorf("cannot compile mapping %q: property %q has an incomplete composite", mappingID, b.Property)
		}
		out.Composites = append(out.Composites, spec.Composite(comp))
	}
	if b.ResultSet != "" {
		if b.Mapping == "" {
			return nil, fmt.Errorf("cannot compile mapping %q: property %q names result set %q but no mapping", mappingID, b.Property, b.ResultSet)
		}
		out.JoinColumns = splitColumns(b.Column)
		out.ForeignColumns = splitColumns(b.ForeignColumns)
		out.Column = ""
		if len(out.JoinColumns) == 0 || len(out.JoinColumns) != len(out.ForeignColumns) {
			return nil, fmt.Errorf("cannot compile mapping %q: property %q needs matching join and foreign columns", mappingID, b.Property)
		}
	} else {
		out.Column = b.Column
		if b.ForeignColumns != "" {
			return nil, fmt.Errorf("cannot compile mapping %q: property %q has foreign columns but no result set", mappingID, b.Property)
		}
	}
	return out, nil
}

func splitColumns(list string) []string {
	var out []string
	for _, col := range strings.Split(list, ",") {
		col = strings.TrimSpace(col)
		if col != "" {
			out = append(out, col)
		}
	}
	return out
}

func validateTarget(mappingID string, t reflect.Type) error {
	k := t.Kind()
	switch k {
	case reflect.Struct, reflect.Interface:
		return nil
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return nil
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return nil
		}
		return fmt.Errorf("cannot compile mapping %q: map target needs string keys, got %s", mappingID, t.Key())
	case reflect.String, reflect.Bool, reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	}
	return fmt.Errorf("cannot compile mapping %q: unsupported target type %s", mappingID, t)
}

// validateProperty checks at registration time that a struct target can
// receive the property, so misspelt bindings fail before the first row.
func validateProperty(mappingID string, target reflect.Type, property string) error {
	t := target
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	info, err := typeinfo.GetInfo(t)
	if err != nil {
		return fmt.Errorf("cannot compile mapping %q: %s", mappingID, err)
	}
	if _, ok := info.FindField(property, false); !ok {
		return fmt.Errorf("cannot compile mapping %q: type %s has no property %q", mappingID, t, property)
	}
	return nil
}
