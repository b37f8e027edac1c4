// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowset

import (
	"database/sql"
	"fmt"
	"strings"
)

// rowsSource adapts *sql.Rows to the Source interface. database/sql rows are
// forward-only, so Seek always reports false and each row is buffered once
// for by-name access.
type rowsSource struct {
	rows    *sql.Rows
	columns []Column
	index   map[string]int
	current []any
	err     error
}

// FromRows adapts a *sql.Rows for the engine. The caller remains
// responsible for closing the rows.
func FromRows(rows *sql.Rows) (Source, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("cannot read column metadata: %s", err)
	}
	columns := make([]Column, len(types))
	index := make(map[string]int, len(types))
	for i, ct := range types {
		columns[i] = Column{Name: ct.Name(), DeclType: ct.DatabaseTypeName()}
		index[strings.ToUpper(ct.Name())] = i
	}
	return &rowsSource{rows: rows, columns: columns, index: index}, nil
}

func (s *rowsSource) Columns() []Column {
	return s.columns
}

func (s *rowsSource) Seek(offset int) bool {
	return false
}

func (s *rowsSource) Next() bool {
	if s.err != nil || !s.rows.Next() {
		s.current = nil
		return false
	}
	values := make([]any, len(s.columns))
	ptrs := make([]any, len(s.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.err = err
		return false
	}
	s.current = values
	return true
}

func (s *rowsSource) Value(column string) (any, error) {
	i, ok := s.index[strings.ToUpper(column)]
	if !ok {
		return nil, fmt.Errorf("result set has no column %q", column)
	}
	if s.current == nil {
		return nil, fmt.Errorf("no current row")
	}
	return s.current[i], nil
}

func (s *rowsSource) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

// staticSource serves in-memory rows. Unlike database rows it supports
// random positioning, which exercises the seek path of row windows.
type staticSource struct {
	columns []Column
	index   map[string]int
	rows    [][]any
	pos     int
}

// Static builds an in-memory source from column names and rows. Rows must
// all have one value per column.
func Static(columns []string, rows [][]any) Source {
	cols := make([]Column, len(columns))
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		cols[i] = Column{Name: name}
		index[strings.ToUpper(name)] = i
	}
	return &staticSource{columns: cols, index: index, rows: rows, pos: -1}
}

func (s *staticSource) Columns() []Column {
	return s.columns
}

func (s *staticSource) Seek(offset int) bool {
	s.pos = offset - 1
	return true
}

func (s *staticSource) Next() bool {
	if s.pos+1 >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *staticSource) Value(column string) (any, error) {
	i, ok := s.index[strings.ToUpper(column)]
	if !ok {
		return nil, fmt.Errorf("result set has no column %q", column)
	}
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil, fmt.Errorf("no current row")
	}
	row := s.rows[s.pos]
	if i >= len(row) {
		return nil, fmt.Errorf("row %d has no value for column %q", s.pos, column)
	}
	return row[i], nil
}

func (s *staticSource) Err() error {
	return nil
}
