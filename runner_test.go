// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph_test

import (
	"reflect"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/rowgraph"
)

type RunnerSuite struct{}

var _ = Suite(&RunnerSuite{})

func (s *RunnerSuite) TestRegisterDuplicate(c *C) {
	db, err := setupDB()
	c.Assert(err, IsNil)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()

	c.Assert(runner.Register("q", "SELECT 1", "m"), IsNil)
	c.Assert(runner.Register("q", "SELECT 2", "m"), ErrorMatches, `statement "q" already registered`)
}

func (s *RunnerSuite) TestRunUnregistered(c *C) {
	db, err := setupDB()
	c.Assert(err, IsNil)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	runner.Bind(rowgraph.NewSchema(rowgraph.Config{}))

	_, err = runner.Run("missing", int64(1), nil)
	c.Assert(err, ErrorMatches, `statement "missing" not registered`)
}

func (s *RunnerSuite) TestRunUnbound(c *C) {
	db, err := setupDB()
	c.Assert(err, IsNil)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	c.Assert(runner.Register("q", "SELECT 1", "m"), IsNil)

	_, err = runner.Run("q", int64(1), nil)
	c.Assert(err, ErrorMatches, `cannot run statement "q": runner not bound to a schema`)
}

func (s *RunnerSuite) TestRunMaterializesRows(c *C) {
	db := orderAndLineDB(c)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{ID: "line", Type: Line{}})
	runner.Bind(schema)
	c.Assert(runner.Register("lines-for-order",
		"SELECT sku, qty FROM lines WHERE order_id = ? ORDER BY sku DESC", "line"), IsNil)

	result, err := runner.Run("lines-for-order", int64(1), reflect.TypeOf([]Line(nil)))
	c.Assert(err, IsNil)
	values := result.([]any)
	c.Assert(values, HasLen, 2)
	c.Check(*values[0].(*Line), Equals, Line{SKU: "widget", Qty: 3})
}

func (s *RunnerSuite) TestResultCache(c *C) {
	db := orderAndLineDB(c)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{ID: "line", Type: Line{}})
	runner.Bind(schema)
	c.Assert(runner.Register("lines-for-order",
		"SELECT sku, qty FROM lines WHERE order_id = ?", "line"), IsNil)

	c.Check(runner.Cached("lines-for-order", int64(1)), Equals, false)
	first, err := runner.Run("lines-for-order", int64(1), nil)
	c.Assert(err, IsNil)
	c.Check(runner.Cached("lines-for-order", int64(1)), Equals, true)
	c.Check(runner.Cached("lines-for-order", int64(2)), Equals, false)

	// A second run with the same parameter returns the cached result.
	_, err = db.Exec("DELETE FROM lines")
	c.Assert(err, IsNil)
	second, err := runner.Run("lines-for-order", int64(1), nil)
	c.Assert(err, IsNil)
	c.Check(second.([]any), HasLen, len(first.([]any)))

	runner.Reset()
	c.Check(runner.Cached("lines-for-order", int64(1)), Equals, false)
	third, err := runner.Run("lines-for-order", int64(1), nil)
	c.Assert(err, IsNil)
	c.Check(third.([]any), HasLen, 0)
}

func (s *RunnerSuite) TestDeferToCache(c *C) {
	db := orderAndLineDB(c)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{ID: "line", Type: Line{}})
	runner.Bind(schema)
	c.Assert(runner.Register("lines-for-order",
		"SELECT sku, qty FROM lines WHERE order_id = ?", "line"), IsNil)

	err := runner.DeferToCache("lines-for-order", int64(1), func(any) error { return nil })
	c.Assert(err, ErrorMatches, `statement "lines-for-order" has no cached result to defer to`)

	_, err = runner.Run("lines-for-order", int64(1), nil)
	c.Assert(err, IsNil)
	var got any
	err = runner.DeferToCache("lines-for-order", int64(1), func(value any) error {
		got = value
		return nil
	})
	c.Assert(err, IsNil)
	c.Assert(got, NotNil)
	c.Check(got.([]any), HasLen, 2)
}

func (s *RunnerSuite) TestMapParameter(c *C) {
	db := orderAndLineDB(c)
	defer db.Close()
	runner := rowgraph.NewDBRunner(db)
	defer runner.Close()
	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{ID: "line", Type: Line{}})
	runner.Bind(schema)
	c.Assert(runner.Register("line-for-order-sku",
		"SELECT sku, qty FROM lines WHERE order_id = ? AND sku = ?",
		"line", "order", "sku"), IsNil)

	result, err := runner.Run("line-for-order-sku",
		rowgraph.M{"order": int64(1), "sku": "widget"}, nil)
	c.Assert(err, IsNil)
	values := result.([]any)
	c.Assert(values, HasLen, 1)
	c.Check(*values[0].(*Line), Equals, Line{SKU: "widget", Qty: 3})

	_, err = runner.Run("line-for-order-sku", rowgraph.M{"order": int64(1)}, nil)
	c.Assert(err, ErrorMatches, `statement parameter "sku" missing from .*`)
}
