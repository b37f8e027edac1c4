// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"database/sql"

	"github.com/canonical/rowgraph/internal/engine"
	"github.com/canonical/rowgraph/internal/rowset"
)

// Window bounds one materialization: skip Offset rows of the result set,
// then deliver at most Limit values. The zero Window delivers everything.
type Window = engine.Window

// Materializer converts the result sets of one statement execution into
// typed values. It carries per-execution state, deferred cross-result-set
// relations in particular, so a fresh one is needed for each execution and
// it must not be shared between goroutines.
type Materializer struct {
	engine *engine.Engine
}

// Materializer returns a materializer for one statement execution against
// this schema.
func (s *Schema) Materializer() *Materializer {
	return &Materializer{
		engine: engine.New(s.registry, s.converters, s.config, s.queries, s.proxies),
	}
}

// Rows consumes a statement's result set under the named mapping, calling
// consume once per completed value. Rows whose every mapped column is null
// are delivered as nil unless the schema keeps empty instances. Returning
// false from consume stops the materialization.
//
// Rows does not close the cursor; that stays with the caller, as does
// advancing to any further result set.
func (mz *Materializer) Rows(rows *sql.Rows, mapping string, window Window, consume func(value any) bool) error {
	src, err := rowset.FromRows(rows)
	if err != nil {
		return err
	}
	return mz.engine.Materialize(src, mapping, window, consume)
}

// All consumes a statement's result set under the named mapping and returns
// the completed values in row order.
func (mz *Materializer) All(rows *sql.Rows, mapping string, window Window) ([]any, error) {
	src, err := rowset.FromRows(rows)
	if err != nil {
		return nil, err
	}
	return mz.all(src, mapping, window)
}

// NamedRows consumes a supplemental result set, linking its values into the
// previously materialized owners that declared the result set name. A result
// set no owner declared is drained without effect.
func (mz *Materializer) NamedRows(rows *sql.Rows, resultSet string) error {
	src, err := rowset.FromRows(rows)
	if err != nil {
		return err
	}
	return mz.engine.MaterializeNamed(src, resultSet)
}

// Values materializes in-memory rows under the named mapping. It serves
// tests and callers whose rows do not come from database/sql.
func (mz *Materializer) Values(columns []string, rows [][]any, mapping string, window Window, consume func(value any) bool) error {
	return mz.engine.Materialize(rowset.Static(columns, rows), mapping, window, consume)
}

// AllValues materializes in-memory rows and returns the completed values in
// row order.
func (mz *Materializer) AllValues(columns []string, rows [][]any, mapping string, window Window) ([]any, error) {
	return mz.all(rowset.Static(columns, rows), mapping, window)
}

// NamedValues consumes an in-memory supplemental result set.
func (mz *Materializer) NamedValues(columns []string, rows [][]any, resultSet string) error {
	return mz.engine.MaterializeNamed(rowset.Static(columns, rows), resultSet)
}

func (mz *Materializer) all(src rowset.Source, mapping string, window Window) ([]any, error) {
	var out []any
	err := mz.engine.Materialize(src, mapping, window, func(value any) bool {
		out = append(out, value)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close discards the materializer's execution state. Owners whose deferred
// relations never saw their result set keep empty collections.
func (mz *Materializer) Close() {
	mz.engine.Close()
}
