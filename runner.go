// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// statement is one registered nested statement: its SQL text, the mapping
// its rows materialize under, and the declared order of its parameters.
type statement struct {
	sql     string
	mapping string
	params  []string
}

// DBRunner is a [QueryRunner] backed by database/sql. Nested statements are
// registered by id with their SQL text; their rows are materialized under a
// mapping of the schema the runner is bound to.
//
// The runner caches the sql.Stmt prepared for each registered statement and
// keeps an execution-scoped result cache, so that a statement run twice with
// the same parameter during one materialization hits the database once, and
// circular nested statements resolve through deferral instead of recursing
// forever.
type DBRunner struct {
	db     *sql.DB
	schema *Schema

	mutex      sync.RWMutex
	statements map[string]statement
	prepared   map[string]*sql.Stmt

	// results is the execution-scoped cache: nil marks a statement in
	// flight, a non-nil entry holds its finished result.
	results map[string]*cacheEntry
}

type cacheEntry struct {
	done    bool
	value   any
	assigns []func(value any) error
}

// NewDBRunner returns a runner executing statements on db.
func NewDBRunner(db *sql.DB) *DBRunner {
	return &DBRunner{
		db:         db,
		statements: make(map[string]statement),
		prepared:   make(map[string]*sql.Stmt),
		results:    make(map[string]*cacheEntry),
	}
}

// Bind attaches the schema whose mappings shape the statements' rows. The
// schema usually names the runner in [WithQueryRunner], so binding is a
// separate step after both exist.
func (r *DBRunner) Bind(schema *Schema) {
	r.mutex.Lock()
	r.schema = schema
	r.mutex.Unlock()
}

// Register adds a statement under an id. The SQL uses driver placeholders;
// params names the statement's parameters in placeholder order, matched
// against the keys of map parameters. A statement with a single anonymous
// parameter needs no param names.
func (r *DBRunner) Register(id, sqlText, mapping string, params ...string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.statements[id]; ok {
		return fmt.Errorf("statement %q already registered", id)
	}
	r.statements[id] = statement{sql: sqlText, mapping: mapping, params: params}
	return nil
}

// Run executes the registered statement and returns its materialized rows
// as a []any for the engine to shape to the receiving property.
func (r *DBRunner) Run(queryID string, param any, target reflect.Type) (any, error) {
	key := resultKey(queryID, param)
	r.mutex.Lock()
	entry, ok := r.results[key]
	if ok && entry.done {
		r.mutex.Unlock()
		return entry.value, nil
	}
	if !ok {
		entry = &cacheEntry{}
		r.results[key] = entry
	}
	st, ok := r.statements[queryID]
	schema := r.schema
	r.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("statement %q not registered", queryID)
	}
	if schema == nil {
		return nil, fmt.Errorf("cannot run statement %q: runner not bound to a schema", queryID)
	}

	stmt, err := r.prepare(queryID, st.sql)
	if err != nil {
		return nil, err
	}
	args, err := statementArgs(st, param)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, fmt.Errorf("statement %q: %s", queryID, err)
	}
	defer rows.Close()
	values, err := schema.Materializer().All(rows, st.mapping, Window{})
	if err != nil {
		return nil, err
	}
	result := any(values)

	r.mutex.Lock()
	entry.done = true
	entry.value = result
	assigns := entry.assigns
	entry.assigns = nil
	r.mutex.Unlock()
	for _, assign := range assigns {
		if err := assign(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Cached reports whether the statement's result for the parameter is
// already in flight or finished.
func (r *DBRunner) Cached(queryID string, param any) bool {
	r.mutex.RLock()
	_, ok := r.results[resultKey(queryID, param)]
	r.mutex.RUnlock()
	return ok
}

// DeferToCache assigns the cached result now when it is finished, and
// queues the assignment behind the in-flight run otherwise.
func (r *DBRunner) DeferToCache(queryID string, param any, assign func(value any) error) error {
	key := resultKey(queryID, param)
	r.mutex.Lock()
	entry, ok := r.results[key]
	if !ok {
		r.mutex.Unlock()
		return fmt.Errorf("statement %q has no cached result to defer to", queryID)
	}
	if !entry.done {
		entry.assigns = append(entry.assigns, assign)
		r.mutex.Unlock()
		return nil
	}
	value := entry.value
	r.mutex.Unlock()
	return assign(value)
}

// Reset drops the execution-scoped result cache. Call it between statement
// executions when the database may have changed underneath.
func (r *DBRunner) Reset() {
	r.mutex.Lock()
	r.results = make(map[string]*cacheEntry)
	r.mutex.Unlock()
}

// Close closes the prepared statements held by the cache.
func (r *DBRunner) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var firstErr error
	for id, stmt := range r.prepared {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.prepared, id)
	}
	return firstErr
}

func (r *DBRunner) prepare(queryID, sqlText string) (*sql.Stmt, error) {
	r.mutex.RLock()
	stmt, ok := r.prepared[queryID]
	r.mutex.RUnlock()
	if ok {
		return stmt, nil
	}
	stmt, err := r.db.Prepare(sqlText)
	if err != nil {
		return nil, fmt.Errorf("cannot prepare statement %q: %s", queryID, err)
	}
	r.mutex.Lock()
	if cached, ok := r.prepared[queryID]; ok {
		r.mutex.Unlock()
		stmt.Close()
		return cached, nil
	}
	r.prepared[queryID] = stmt
	r.mutex.Unlock()
	return stmt, nil
}

// statementArgs orders the parameter values for the driver. Map parameters
// are picked apart by the statement's declared param names; anything else is
// passed as the single argument.
func statementArgs(st statement, param any) ([]any, error) {
	values, ok := param.(map[string]any)
	if !ok {
		return []any{param}, nil
	}
	if len(st.params) == 0 {
		return nil, fmt.Errorf("statement takes a map parameter but declares no param names")
	}
	args := make([]any, len(st.params))
	for i, name := range st.params {
		value, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("statement parameter %q missing from %v", name, values)
		}
		args[i] = value
	}
	return args, nil
}

// resultKey fingerprints a (statement, parameter) pair. Map parameters are
// rendered in key order so equal maps produce equal keys.
func resultKey(queryID string, param any) string {
	if values, ok := param.(map[string]any); ok {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(queryID)
		for _, k := range keys {
			fmt.Fprintf(&b, "|%s=%v", k, values[k])
		}
		return b.String()
	}
	return fmt.Sprintf("%s|%v", queryID, param)
}
