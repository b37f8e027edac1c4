// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package engine materializes object graphs from tabular result sets
// according to compiled mapping specifications. An Engine holds the state of
// one statement execution: identity tables scoped to the current result set
// pass, and deferred relations that span the statement's result sets.
//
// The engine is single threaded and pull based: it consumes one row at a
// time and has no internal parallelism. It must not be shared between
// goroutines.
package engine

import (
	"fmt"
	"reflect"

	"github.com/canonical/rowgraph/internal/identity"
	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
)

// Config carries the engine-wide materialization switches.
type Config struct {
	// AutoMapping is the default automatic column mapping behaviour for
	// mappings that do not override it.
	AutoMapping spec.AutoBehavior
	// CallSettersOnNull assigns null column values to nullable properties
	// instead of leaving them untouched.
	CallSettersOnNull bool
	// ReturnInstanceForEmptyRow keeps objects whose every mapped column
	// was null instead of dropping them.
	ReturnInstanceForEmptyRow bool
	// MapUnderscoreToCamel lets a column like parent_id match a property
	// like ParentID during automatic mapping.
	MapUnderscoreToCamel bool
}

// QueryRunner executes nested statements on behalf of the engine. It is an
// external collaborator: the engine never prepares or runs SQL itself.
type QueryRunner interface {
	// Run executes the statement and returns its result: a single value,
	// or a []any of values that the engine shapes to the target type.
	Run(queryID string, param any, target reflect.Type) (any, error)
	// Cached reports whether the statement's result for the parameter is
	// already pending in the runner's cache.
	Cached(queryID string, param any) bool
	// DeferToCache asks the runner to call assign once the cached result
	// becomes available.
	DeferToCache(queryID string, param any, assign func(value any) error) error
}

// Consumer receives each completed top-level object. Returning false stops
// the pass.
type Consumer func(value any) bool

// Window bounds the rows of a pass: skip Offset rows, then materialize at
// most Limit objects. A Limit of zero or less means no limit.
type Window struct {
	Offset int
	Limit  int
}

// Engine is the result materialization engine for one statement execution.
type Engine struct {
	registry   *spec.Registry
	converters *typeconv.Registry
	config     Config
	queries    QueryRunner
	proxies    ProxyFactory

	// partials maps combined row identity to the object materialized for
	// it, scoped to one result set pass.
	partials map[identity.Key]any
	// ancestors maps mapping id to the object currently being populated
	// under it, to catch self-referencing nested mappings.
	ancestors map[string]any
	// pendingRelations holds associations waiting for rows of a later
	// result set, keyed by cross-result-set join key.
	pendingRelations map[identity.Key][]pendingRelation
	// nextResultSets routes each named supplemental result set to the
	// binding that declared it.
	nextResultSets map[string]*spec.Binding
	// autoPlans caches the automatic mapping plan per mapping id and
	// column prefix for the current result set.
	autoPlans map[string][]autoColumn

	// usedConstructor records whether the last created object was built
	// through constructor argument bindings.
	usedConstructor bool
}

// New returns an engine for a single statement execution.
func New(registry *spec.Registry, converters *typeconv.Registry, config Config, queries QueryRunner, proxies ProxyFactory) *Engine {
	return &Engine{
		registry:         registry,
		converters:       converters,
		config:           config,
		queries:          queries,
		proxies:          proxies,
		partials:         make(map[identity.Key]any),
		ancestors:        make(map[string]any),
		pendingRelations: make(map[identity.Key][]pendingRelation),
		nextResultSets:   make(map[string]*spec.Binding),
		autoPlans:        make(map[string][]autoColumn),
	}
}

// Materialize consumes all rows of the source under the named mapping,
// invoking consume once per completed top-level object. Objects suppressed
// as empty are delivered as nil.
func (e *Engine) Materialize(src rowset.Source, mappingID string, window Window, consume Consumer) error {
	m, ok := e.registry.Mapping(mappingID)
	if !ok {
		return &ConfigError{Mapping: mappingID, Detail: "mapping not registered"}
	}
	w := rowset.Wrap(src, e.converters)
	defer e.endResultSet()
	if m.HasNested {
		return e.nestedPass(w, m, window, consume, nil)
	}
	return e.simplePass(w, m, window, consume, nil)
}

// MaterializeNamed consumes a supplemental result set, linking each row into
// the owners that registered deferred relations against the name. A result
// set no owner asked for is drained without effect.
func (e *Engine) MaterializeNamed(src rowset.Source, resultSet string) error {
	parent, ok := e.nextResultSets[resultSet]
	if !ok {
		return nil
	}
	m, ok := e.registry.Mapping(parent.NestedMapping)
	if !ok {
		return &ConfigError{Detail: fmt.Sprintf("result set %q references unregistered mapping %q", resultSet, parent.NestedMapping)}
	}
	w := rowset.Wrap(src, e.converters)
	defer e.endResultSet()
	if m.HasNested {
		return e.nestedPass(w, m, Window{}, nil, parent)
	}
	return e.simplePass(w, m, Window{}, nil, parent)
}

// Close discards the pass state. Unresolved deferred relations are left
// empty; that is a defined outcome, not an error.
func (e *Engine) Close() {
	e.endResultSet()
	e.pendingRelations = make(map[identity.Key][]pendingRelation)
	e.nextResultSets = make(map[string]*spec.Binding)
}

// endResultSet clears the tables whose scope is a single result set pass,
// so that row identity never leaks across result sets.
func (e *Engine) endResultSet() {
	e.partials = make(map[identity.Key]any)
	e.ancestors = make(map[string]any)
	e.autoPlans = make(map[string][]autoColumn)
}

// simplePass handles result sets whose mapping has no nested associations:
// every row is one object.
func (e *Engine) simplePass(w *rowset.Wrapper, m *spec.Mapping, window Window, consume Consumer, parent *spec.Binding) error {
	skipRows(w, window)
	stored := 0
	stopped := false
	for !stopped && moreRows(stored, window) && w.Source().Next() {
		dm, err := e.discriminated(w, m, "")
		if err != nil {
			return err
		}
		value, err := e.simpleRowValue(w, dm, "")
		if err != nil {
			return err
		}
		if err := e.store(w, parent, consume, value, &stopped); err != nil {
			return err
		}
		stored++
	}
	return w.Source().Err()
}

// nestedPass handles result sets whose mapping stitches nested
// associations: consecutive rows sharing an identity refine one object.
func (e *Engine) nestedPass(w *rowset.Wrapper, m *spec.Mapping, window Window, consume Consumer, parent *spec.Binding) error {
	skipRows(w, window)
	stored := 0
	stopped := false
	var rowValue any
	for !stopped && moreRows(stored, window) && w.Source().Next() {
		dm, err := e.discriminated(w, m, "")
		if err != nil {
			return err
		}
		rowKey, err := e.rowKey(w, dm, "")
		if err != nil {
			return err
		}
		var partial any
		if rowKey != identity.NullKey {
			partial = e.partials[rowKey]
		}
		if m.ResultOrdered {
			// Rows arrive grouped by parent identity: a fresh identity
			// means the in-flight parent is complete and can be flushed
			// without holding the whole result set.
			if partial == nil && rowValue != nil {
				e.partials = make(map[identity.Key]any)
				if err := e.store(w, parent, consume, rowValue, &stopped); err != nil {
					return err
				}
				stored++
			}
			rowValue, err = e.nestedRowValue(w, dm, rowKey, "", partial)
			if err != nil {
				return err
			}
		} else {
			rowValue, err = e.nestedRowValue(w, dm, rowKey, "", partial)
			if err != nil {
				return err
			}
			if partial == nil {
				if err := e.store(w, parent, consume, rowValue, &stopped); err != nil {
					return err
				}
				stored++
			}
		}
	}
	if rowValue != nil && m.ResultOrdered && !stopped && moreRows(stored, window) {
		if err := e.store(w, parent, consume, rowValue, &stopped); err != nil {
			return err
		}
	}
	return w.Source().Err()
}

// store hands a completed object to its destination: the consumer for a
// top-level pass, or the deferred relation ledger when this pass serves a
// supplemental result set.
func (e *Engine) store(w *rowset.Wrapper, parent *spec.Binding, consume Consumer, value any, stopped *bool) error {
	if parent != nil {
		return e.linkToParents(w, parent, value)
	}
	if consume != nil && !consume(value) {
		*stopped = true
	}
	return nil
}

// skipRows positions the source at the window offset, seeking directly when
// the source supports random positioning and discarding rows otherwise.
func skipRows(w *rowset.Wrapper, window Window) {
	if window.Offset <= 0 {
		return
	}
	if w.Source().Seek(window.Offset) {
		return
	}
	for i := 0; i < window.Offset; i++ {
		if !w.Source().Next() {
			return
		}
	}
}

func moreRows(stored int, window Window) bool {
	return window.Limit <= 0 || stored < window.Limit
}

// shouldAutoMap decides whether the automatic mapping pass applies for a
// mapping, honouring the per-mapping override before the engine default.
func (e *Engine) shouldAutoMap(m *spec.Mapping, nested bool) bool {
	switch m.Auto {
	case spec.AutoOn:
		return true
	case spec.AutoOff:
		return false
	}
	if nested {
		return e.config.AutoMapping == spec.AutoFull
	}
	return e.config.AutoMapping != spec.AutoNone
}

func prependPrefix(column, prefix string) string {
	if column == "" || prefix == "" {
		return column
	}
	return prefix + column
}

func combinePrefix(parentPrefix, bindingPrefix string) string {
	return parentPrefix + bindingPrefix
}
