// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package rowset wraps tabular cursors for the materialization engine. The
// Wrapper caches column metadata, memoizes converter resolution per (target
// type, column) pair, and memoizes the partition of columns into explicitly
// mapped and unmapped per (mapping, column prefix) pair.
package rowset

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
)

// Column describes one column of a result set.
type Column struct {
	// Name is the column's label in declared order.
	Name string
	// DeclType is the column's declared database type, if known.
	DeclType string
}

// Source is a tabular cursor positioned before its first row. It is the
// narrow interface the engine consumes; adapters exist for *sql.Rows and for
// in-memory data.
type Source interface {
	// Columns returns the column metadata in declared order.
	Columns() []Column
	// Next advances to the next row, reporting false at the end.
	Next() bool
	// Seek positions the cursor so that the next call to Next enters the
	// zero-based row offset. It reports false if the source only supports
	// forward iteration, in which case the caller skips by calling Next.
	Seek(offset int) bool
	// Value returns the raw value of the named column in the current row.
	Value(column string) (any, error)
	// Err returns the error, if any, that ended iteration.
	Err() error
}

type converterKey struct {
	target reflect.Type
	column string
}

// Wrapper decorates a Source with the caches the engine needs on every row.
// A Wrapper is scoped to one result set pass.
type Wrapper struct {
	src       Source
	registry  *typeconv.Registry
	columns   []Column
	byUpper   map[string]string
	convCache map[converterKey]typeconv.Converter

	// mapped and unmapped cache the column partition per mapping id and
	// column prefix, since it is identical for every row of the pass.
	mapped    map[string][]string
	mappedSet map[string]map[string]bool
	unmapped  map[string][]string
}

// Wrap decorates a source. The registry resolves value converters for
// (target type, column) pairs.
func Wrap(src Source, registry *typeconv.Registry) *Wrapper {
	cols := src.Columns()
	byUpper := make(map[string]string, len(cols))
	for _, col := range cols {
		byUpper[strings.ToUpper(col.Name)] = col.Name
	}
	return &Wrapper{
		src:       src,
		registry:  registry,
		columns:   cols,
		byUpper:   byUpper,
		convCache: make(map[converterKey]typeconv.Converter),
		mapped:    make(map[string][]string),
		mappedSet: make(map[string]map[string]bool),
		unmapped:  make(map[string][]string),
	}
}

// Source returns the wrapped cursor.
func (w *Wrapper) Source() Source {
	return w.src
}

// Columns returns the column metadata in declared order.
func (w *Wrapper) Columns() []Column {
	return w.columns
}

// Has reports whether the result set carries the named column,
// case-insensitively.
func (w *Wrapper) Has(column string) bool {
	_, ok := w.byUpper[strings.ToUpper(column)]
	return ok
}

// Value reads the named column's raw value from the current row,
// case-insensitively.
func (w *Wrapper) Value(column string) (any, error) {
	name, ok := w.byUpper[strings.ToUpper(column)]
	if !ok {
		return nil, fmt.Errorf("result set has no column %q", column)
	}
	return w.src.Value(name)
}

// ConverterFor resolves the converter for extracting the named column into
// the target type, memoized per (target type, column) pair for the lifetime
// of the wrapper. When the registry has no converter for the target a
// generic passthrough converter is returned rather than failing the row.
func (w *Wrapper) ConverterFor(target reflect.Type, column string) typeconv.Converter {
	key := converterKey{target: target, column: column}
	if c, ok := w.convCache[key]; ok {
		return c
	}
	c := w.registry.Converter(target, w.declType(column))
	if c == nil {
		c = typeconv.Passthrough
	}
	w.convCache[key] = c
	return c
}

// HasConverterFor reports whether the registry has a specific (non-fallback)
// converter for the pair.
func (w *Wrapper) HasConverterFor(target reflect.Type, column string) bool {
	return w.registry.HasConverter(target, w.declType(column))
}

// TargetIsScalar reports whether the target type of a mapping is itself a
// single convertible value, in which case rows materialize by direct
// extraction rather than by property population.
func (w *Wrapper) TargetIsScalar(target reflect.Type) bool {
	if target.Kind() == reflect.Interface {
		// The registry converts into any interface target, so the converter
		// check cannot distinguish a scalar interface from one built by
		// constructor signature inference over several columns.
		return len(w.columns) == 1
	}
	if len(w.columns) == 1 {
		return w.HasConverterFor(target, w.columns[0].Name)
	}
	return w.registry.HasConverter(target, "")
}

// MappedColumns returns the upper-cased names of the result set columns
// claimed by the mapping's explicit bindings under the given prefix.
func (w *Wrapper) MappedColumns(m *spec.Mapping, prefix string) []string {
	key := partitionKey(m, prefix)
	if _, ok := w.mapped[key]; !ok {
		w.partition(m, prefix)
	}
	return w.mapped[key]
}

// UnmappedColumns returns, in declared order and original case, the result
// set columns not claimed by the mapping's explicit bindings under the
// given prefix.
func (w *Wrapper) UnmappedColumns(m *spec.Mapping, prefix string) []string {
	key := partitionKey(m, prefix)
	if _, ok := w.unmapped[key]; !ok {
		w.partition(m, prefix)
	}
	return w.unmapped[key]
}

// IsMapped reports whether the (already prefixed) column is claimed by the
// mapping's explicit bindings and present in the result set.
func (w *Wrapper) IsMapped(m *spec.Mapping, prefix, column string) bool {
	key := partitionKey(m, prefix)
	if _, ok := w.mappedSet[key]; !ok {
		w.partition(m, prefix)
	}
	return w.mappedSet[key][strings.ToUpper(column)]
}

func (w *Wrapper) partition(m *spec.Mapping, prefix string) {
	upperPrefix := strings.ToUpper(prefix)
	claimed := make(map[string]bool, len(m.MappedColumns))
	for col := range m.MappedColumns {
		claimed[upperPrefix+col] = true
	}
	var mapped, unmapped []string
	set := make(map[string]bool)
	for _, col := range w.columns {
		upper := strings.ToUpper(col.Name)
		if claimed[upper] {
			mapped = append(mapped, upper)
			set[upper] = true
		} else {
			unmapped = append(unmapped, col.Name)
		}
	}
	key := partitionKey(m, prefix)
	w.mapped[key] = mapped
	w.mappedSet[key] = set
	w.unmapped[key] = unmapped
}

func partitionKey(m *spec.Mapping, prefix string) string {
	return m.ID + ":" + strings.ToUpper(prefix)
}

func (w *Wrapper) declType(column string) string {
	upper := strings.ToUpper(column)
	for _, col := range w.columns {
		if strings.ToUpper(col.Name) == upper {
			return col.DeclType
		}
	}
	return ""
}
