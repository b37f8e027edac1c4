// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"
	"reflect"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
)

func TestEngine(t *testing.T) { TestingT(t) }

type engineSuite struct{}

var _ = Suite(&engineSuite{})

type order struct {
	ID       int    `db:"id"`
	Customer string `db:"customer"`
	Lines    []line
}

type line struct {
	SKU string `db:"sku"`
	Qty int    `db:"qty"`
}

func lineMapping() *spec.Mapping {
	m := &spec.Mapping{
		ID:   "line",
		Type: reflect.TypeOf(line{}),
		Properties: []*spec.Binding{
			{Column: "sku", Property: "SKU"},
			{Column: "qty", Property: "Qty"},
		},
	}
	m.Finish()
	return m
}

func orderMapping() *spec.Mapping {
	m := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "customer", Property: "Customer"},
			{Property: "Lines", NestedMapping: "line", ColumnPrefix: "l_"},
		},
	}
	m.Finish()
	return m
}

func newTestEngine(c *C, config Config, queries QueryRunner, mappings ...*spec.Mapping) *Engine {
	registry := spec.NewRegistry()
	for _, m := range mappings {
		c.Assert(registry.Add(m), IsNil)
	}
	return New(registry, typeconv.NewRegistry(), config, queries, nil)
}

func collect(c *C, e *Engine, src rowset.Source, mappingID string, window Window) []any {
	var out []any
	err := e.Materialize(src, mappingID, window, func(v any) bool {
		out = append(out, v)
		return true
	})
	c.Assert(err, IsNil)
	return out
}

func (s *engineSuite) TestSimpleMapping(c *C) {
	e := newTestEngine(c, Config{}, nil, lineMapping())
	src := rowset.Static([]string{"sku", "qty"}, [][]any{
		{"widget", int64(3)},
		{"sprocket", int64(1)},
	})
	out := collect(c, e, src, "line", Window{})
	c.Assert(out, HasLen, 2)
	c.Check(out[0].(*line).SKU, Equals, "widget")
	c.Check(out[0].(*line).Qty, Equals, 3)
	c.Check(out[1].(*line).SKU, Equals, "sprocket")
}

func (s *engineSuite) TestAutomaticMapping(c *C) {
	m := &spec.Mapping{ID: "line", Type: reflect.TypeOf(line{})}
	m.Finish()
	e := newTestEngine(c, Config{AutoMapping: spec.AutoPartial}, nil, m)
	src := rowset.Static([]string{"sku", "qty"}, [][]any{{"widget", int64(3)}})
	out := collect(c, e, src, "line", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(out[0].(*line).SKU, Equals, "widget")
	c.Check(out[0].(*line).Qty, Equals, 3)
}

func (s *engineSuite) TestAutomaticMappingUnderscoreToCamel(c *C) {
	type invoice struct {
		InvoiceID int
	}
	m := &spec.Mapping{ID: "invoice", Type: reflect.TypeOf(invoice{})}
	m.Finish()
	e := newTestEngine(c, Config{AutoMapping: spec.AutoPartial, MapUnderscoreToCamel: true}, nil, m)
	src := rowset.Static([]string{"invoice_id"}, [][]any{{int64(7)}})
	out := collect(c, e, src, "invoice", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(out[0].(*invoice).InvoiceID, Equals, 7)
}

func (s *engineSuite) TestNullRowSuppressed(c *C) {
	e := newTestEngine(c, Config{}, nil, lineMapping())
	src := rowset.Static([]string{"sku", "qty"}, [][]any{{nil, nil}})
	out := collect(c, e, src, "line", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(out[0], IsNil)
}

func (s *engineSuite) TestNullRowKeptWhenConfigured(c *C) {
	e := newTestEngine(c, Config{ReturnInstanceForEmptyRow: true}, nil, lineMapping())
	src := rowset.Static([]string{"sku", "qty"}, [][]any{{nil, nil}})
	out := collect(c, e, src, "line", Window{})
	c.Assert(out, HasLen, 1)
	c.Assert(out[0], NotNil)
	c.Check(out[0].(*line).SKU, Equals, "")
}

func (s *engineSuite) TestCallSettersOnNull(c *C) {
	m := &spec.Mapping{ID: "row", Type: reflect.TypeOf(map[string]any{})}
	m.Finish()
	src := [][]any{{int64(1), nil}}

	e := newTestEngine(c, Config{AutoMapping: spec.AutoPartial}, nil, m)
	out := collect(c, e, rowset.Static([]string{"id", "name"}, src), "row", Window{})
	c.Assert(out, HasLen, 1)
	_, present := out[0].(map[string]any)["name"]
	c.Check(present, Equals, false)

	e = newTestEngine(c, Config{AutoMapping: spec.AutoPartial, CallSettersOnNull: true}, nil, m)
	out = collect(c, e, rowset.Static([]string{"id", "name"}, src), "row", Window{})
	c.Assert(out, HasLen, 1)
	row := out[0].(map[string]any)
	value, present := row["name"]
	c.Check(present, Equals, true)
	c.Check(value, IsNil)
}

func (s *engineSuite) TestWindowOffsetAndLimit(c *C) {
	e := newTestEngine(c, Config{}, nil, lineMapping())
	src := rowset.Static([]string{"sku", "qty"}, [][]any{
		{"a", int64(1)}, {"b", int64(2)}, {"c", int64(3)}, {"d", int64(4)},
	})
	out := collect(c, e, src, "line", Window{Offset: 1, Limit: 2})
	c.Assert(out, HasLen, 2)
	c.Check(out[0].(*line).SKU, Equals, "b")
	c.Check(out[1].(*line).SKU, Equals, "c")
}

func (s *engineSuite) TestConsumerStopsPass(c *C) {
	e := newTestEngine(c, Config{}, nil, lineMapping())
	src := rowset.Static([]string{"sku", "qty"}, [][]any{
		{"a", int64(1)}, {"b", int64(2)}, {"c", int64(3)},
	})
	var out []any
	err := e.Materialize(src, "line", Window{}, func(v any) bool {
		out = append(out, v)
		return false
	})
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 1)
}

func (s *engineSuite) TestNestedRowsCollapseByIdentity(c *C) {
	e := newTestEngine(c, Config{}, nil, orderMapping(), lineMapping())
	src := rowset.Static([]string{"id", "customer", "l_sku", "l_qty"}, [][]any{
		{int64(1), "ada", "widget", int64(3)},
		{int64(1), "ada", "sprocket", int64(1)},
		{int64(2), "bob", "widget", int64(2)},
	})
	out := collect(c, e, src, "order", Window{})
	c.Assert(out, HasLen, 2)
	first := out[0].(*order)
	c.Check(first.ID, Equals, 1)
	c.Check(first.Customer, Equals, "ada")
	c.Assert(first.Lines, HasLen, 2)
	c.Check(first.Lines[0].SKU, Equals, "widget")
	c.Check(first.Lines[1].SKU, Equals, "sprocket")
	second := out[1].(*order)
	c.Check(second.ID, Equals, 2)
	c.Assert(second.Lines, HasLen, 1)
}

func (s *engineSuite) TestNestedNullAssociationSkipped(c *C) {
	e := newTestEngine(c, Config{}, nil, orderMapping(), lineMapping())
	src := rowset.Static([]string{"id", "customer", "l_sku", "l_qty"}, [][]any{
		{int64(1), "ada", nil, nil},
	})
	out := collect(c, e, src, "order", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(out[0].(*order).Lines, HasLen, 0)
}

func (s *engineSuite) TestEqualChildrenUnderDifferentParents(c *C) {
	e := newTestEngine(c, Config{}, nil, orderMapping(), lineMapping())
	src := rowset.Static([]string{"id", "customer", "l_sku", "l_qty"}, [][]any{
		{int64(1), "ada", "widget", int64(3)},
		{int64(2), "bob", "widget", int64(3)},
	})
	out := collect(c, e, src, "order", Window{})
	c.Assert(out, HasLen, 2)
	c.Assert(out[0].(*order).Lines, HasLen, 1)
	c.Assert(out[1].(*order).Lines, HasLen, 1)
}

func (s *engineSuite) TestResultOrderedFlush(c *C) {
	m := orderMapping()
	m.ResultOrdered = true
	e := newTestEngine(c, Config{}, nil, m, lineMapping())
	src := rowset.Static([]string{"id", "customer", "l_sku", "l_qty"}, [][]any{
		{int64(1), "ada", "widget", int64(3)},
		{int64(1), "ada", "sprocket", int64(1)},
		{int64(2), "bob", "widget", int64(2)},
	})
	var sizes []int
	err := e.Materialize(src, "order", Window{}, func(v any) bool {
		sizes = append(sizes, len(v.(*order).Lines))
		return true
	})
	c.Assert(err, IsNil)
	// The first parent is flushed as soon as the second appears, with its
	// lines complete; the tail flush delivers the last parent.
	c.Check(sizes, DeepEquals, []int{2, 1})
}

type vehicle struct {
	ID   int    `db:"id"`
	Kind string `db:"kind"`
}

type car struct {
	ID    int    `db:"id"`
	Doors int    `db:"doors"`
}

func (s *engineSuite) TestDiscriminator(c *C) {
	base := &spec.Mapping{
		ID:   "vehicle",
		Type: reflect.TypeOf(vehicle{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID"},
			{Column: "kind", Property: "Kind"},
		},
		Discriminator: &spec.Discriminator{
			Column: "kind",
			Cases:  map[string]string{"car": "car"},
		},
	}
	base.Finish()
	carM := &spec.Mapping{
		ID:   "car",
		Type: reflect.TypeOf(car{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID"},
			{Column: "doors", Property: "Doors"},
		},
	}
	carM.Finish()
	e := newTestEngine(c, Config{}, nil, base, carM)
	src := rowset.Static([]string{"id", "kind", "doors"}, [][]any{
		{int64(1), "car", int64(4)},
		{int64(2), "boat", nil},
	})
	out := collect(c, e, src, "vehicle", Window{})
	c.Assert(out, HasLen, 2)
	c.Check(out[0].(*car).Doors, Equals, 4)
	c.Check(out[1].(*vehicle).Kind, Equals, "boat")
}

func (s *engineSuite) TestDiscriminatorCycleTerminates(c *C) {
	a := &spec.Mapping{
		ID:            "a",
		Type:          reflect.TypeOf(vehicle{}),
		Properties:    []*spec.Binding{{Column: "id", Property: "ID"}},
		Discriminator: &spec.Discriminator{Column: "kind", Cases: map[string]string{"x": "b"}},
	}
	a.Finish()
	b := &spec.Mapping{
		ID:            "b",
		Type:          reflect.TypeOf(car{}),
		Properties:    []*spec.Binding{{Column: "id", Property: "ID"}},
		Discriminator: &spec.Discriminator{Column: "kind", Cases: map[string]string{"x": "a"}},
	}
	b.Finish()
	e := newTestEngine(c, Config{}, nil, a, b)
	src := rowset.Static([]string{"id", "kind"}, [][]any{{int64(1), "x"}})
	out := collect(c, e, src, "a", Window{})
	c.Assert(out, HasLen, 1)
	// a switches to b, b switches back to the already-visited a, and the
	// loop terminates there.
	c.Check(out[0], FitsTypeOf, &vehicle{})
}

func (s *engineSuite) TestDiscriminatorUnknownCaseMappingKeepsBase(c *C) {
	base := &spec.Mapping{
		ID:   "vehicle",
		Type: reflect.TypeOf(vehicle{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID"},
			{Column: "kind", Property: "Kind"},
		},
		Discriminator: &spec.Discriminator{
			Column: "kind",
			Cases:  map[string]string{"car": "unregistered"},
		},
	}
	base.Finish()
	e := newTestEngine(c, Config{}, nil, base)
	src := rowset.Static([]string{"id", "kind"}, [][]any{{int64(1), "car"}})
	out := collect(c, e, src, "vehicle", Window{})
	c.Assert(out, HasLen, 1)
	// A case naming an unregistered mapping materializes the row under the
	// declaring mapping instead.
	c.Assert(out[0], FitsTypeOf, &vehicle{})
	c.Check(out[0].(*vehicle).Kind, Equals, "car")
}

type node struct {
	ID     int    `db:"id"`
	Name   string `db:"name"`
	Parent *node
}

func (s *engineSuite) TestSelfReferenceLinksAncestor(c *C) {
	m := &spec.Mapping{
		ID:   "node",
		Type: reflect.TypeOf(node{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "name", Property: "Name"},
			{Property: "Parent", NestedMapping: "node"},
		},
	}
	m.Finish()
	e := newTestEngine(c, Config{}, nil, m)
	src := rowset.Static([]string{"id", "name"}, [][]any{{int64(1), "root"}})
	out := collect(c, e, src, "node", Window{})
	c.Assert(out, HasLen, 1)
	n := out[0].(*node)
	// An unprefixed self reference resolves to the object being built.
	c.Check(n.Parent, Equals, n)
}

func (s *engineSuite) TestDeferredResultSetLinking(c *C) {
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "customer", Property: "Customer"},
			{
				Property:       "Lines",
				NestedMapping:  "line",
				ResultSet:      "lines",
				JoinColumns:    []string{"id"},
				ForeignColumns: []string{"order_id"},
			},
		},
	}
	owner.Finish()
	c.Check(owner.HasNested, Equals, false)
	e := newTestEngine(c, Config{}, nil, owner, lineMapping())
	var out []any
	err := e.Materialize(
		rowset.Static([]string{"id", "customer"}, [][]any{
			{int64(1), "ada"},
			{int64(2), "bob"},
		}),
		"order", Window{},
		func(v any) bool { out = append(out, v); return true },
	)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 2)
	err = e.MaterializeNamed(
		rowset.Static([]string{"order_id", "sku", "qty"}, [][]any{
			{int64(1), "widget", int64(3)},
			{int64(1), "sprocket", int64(1)},
		}),
		"lines",
	)
	c.Assert(err, IsNil)
	first := out[0].(*order)
	c.Assert(first.Lines, HasLen, 2)
	c.Check(first.Lines[0].SKU, Equals, "widget")
	// An owner with no supplemental rows ends up with an empty collection,
	// not a nil one.
	second := out[1].(*order)
	c.Assert(second.Lines, NotNil)
	c.Check(second.Lines, HasLen, 0)
}

func (s *engineSuite) TestUnclaimedNamedResultSetDrained(c *C) {
	e := newTestEngine(c, Config{}, nil, lineMapping())
	err := e.MaterializeNamed(rowset.Static([]string{"x"}, [][]any{{int64(1)}}), "nobody")
	c.Assert(err, IsNil)
}

type fakeRunner struct {
	results map[string]any
	cached  map[string]bool
	assigns map[string]func(any) error
	params  map[string]any
	calls   int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]any),
		cached:  make(map[string]bool),
		assigns: make(map[string]func(any) error),
		params:  make(map[string]any),
	}
}

func (r *fakeRunner) Run(queryID string, param any, target reflect.Type) (any, error) {
	r.calls++
	r.params[queryID] = param
	result, ok := r.results[queryID]
	if !ok {
		return nil, fmt.Errorf("no such statement %q", queryID)
	}
	return result, nil
}

func (r *fakeRunner) Cached(queryID string, param any) bool {
	return r.cached[queryID]
}

func (r *fakeRunner) DeferToCache(queryID string, param any, assign func(any) error) error {
	r.assigns[queryID] = assign
	return nil
}

func (s *engineSuite) TestNestedQueryEager(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{line{SKU: "widget", Qty: 3}}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "id", Property: "Lines", NestedQuery: "findLines"},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id"}, [][]any{{int64(1)}}), "order", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(runner.calls, Equals, 1)
	c.Assert(out[0].(*order).Lines, HasLen, 1)
	c.Check(out[0].(*order).Lines[0].SKU, Equals, "widget")
}

func (s *engineSuite) TestNestedQueryScalarCardinality(c *C) {
	type customer struct {
		ID   int    `db:"id"`
		Name string
	}
	runner := newFakeRunner()
	runner.results["findName"] = []any{"ada", "lovelace"}
	m := &spec.Mapping{
		ID:   "customer",
		Type: reflect.TypeOf(customer{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "id", Property: "Name", NestedQuery: "findName"},
		},
	}
	m.Finish()
	e := newTestEngine(c, Config{}, runner, m)
	err := e.Materialize(rowset.Static([]string{"id"}, [][]any{{int64(1)}}), "customer", Window{}, nil)
	c.Assert(err, ErrorMatches, `.*property "Name" expects one value, got 2.*`)
}

func (s *engineSuite) TestNestedQueryNullParamSkipsStatement(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{line{SKU: "widget"}}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "customer", Property: "Customer"},
			{Column: "id", Property: "Lines", NestedQuery: "findLines"},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id", "customer"}, [][]any{{nil, "ada"}}), "order", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(runner.calls, Equals, 0)
	c.Check(out[0].(*order).Lines, HasLen, 0)
}

func (s *engineSuite) TestNestedQueryCompositeParam(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{line{SKU: "widget", Qty: 2}}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Property: "Lines", NestedQuery: "findLines", Composites: []spec.Composite{
				{Property: "orderID", Column: "id"},
				{Property: "region", Column: "region"},
			}},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id", "region"}, [][]any{
		{int64(1), "emea"},
		{nil, nil},
	}), "order", Window{})
	c.Assert(out, HasLen, 2)
	c.Check(runner.calls, Equals, 1)
	c.Check(runner.params["findLines"], DeepEquals, map[string]any{
		"orderID": int64(1),
		"region":  "emea",
	})
	c.Assert(out[0].(*order).Lines, HasLen, 1)
	// A row whose every composite column is null never runs the statement.
	c.Check(out[1], IsNil)
}

func (s *engineSuite) TestNestedQueryCompositeParamPartialNull(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Property: "Lines", NestedQuery: "findLines", Composites: []spec.Composite{
				{Property: "orderID", Column: "id"},
				{Property: "region", Column: "region"},
			}},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id", "region"}, [][]any{
		{int64(2), nil},
	}), "order", Window{})
	c.Assert(out, HasLen, 1)
	// One non-null column is enough to build the parameter; the null column
	// travels as a nil entry.
	c.Check(runner.calls, Equals, 1)
	c.Check(runner.params["findLines"], DeepEquals, map[string]any{
		"orderID": int64(2),
		"region":  nil,
	})
}

func (s *engineSuite) TestNestedQueryDeferredToCache(c *C) {
	runner := newFakeRunner()
	runner.cached["findLines"] = true
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "id", Property: "Lines", NestedQuery: "findLines"},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id"}, [][]any{{int64(1)}}), "order", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(runner.calls, Equals, 0)
	assign := runner.assigns["findLines"]
	c.Assert(assign, NotNil)
	c.Assert(assign([]any{line{SKU: "widget", Qty: 1}}), IsNil)
	c.Assert(out[0].(*order).Lines, HasLen, 1)
}

type lazyOrder struct {
	ID      int `db:"id"`
	Lines   []line
	pending *Pending
}

func (o *lazyOrder) AttachPending(p *Pending) { o.pending = p }

func (s *engineSuite) TestNestedQueryLazy(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{line{SKU: "widget", Qty: 3}}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(lazyOrder{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "id", Property: "Lines", NestedQuery: "findLines", Lazy: true},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id"}, [][]any{{int64(1)}}), "order", Window{})
	c.Assert(out, HasLen, 1)
	o := out[0].(*lazyOrder)
	c.Check(runner.calls, Equals, 0)
	c.Assert(o.pending, NotNil)
	c.Check(o.pending.Has("Lines"), Equals, true)
	c.Assert(o.pending.Load("Lines"), IsNil)
	c.Check(runner.calls, Equals, 1)
	c.Assert(o.Lines, HasLen, 1)
	// A second load is a no-op.
	c.Assert(o.pending.Load("Lines"), IsNil)
	c.Check(runner.calls, Equals, 1)
}

func (s *engineSuite) TestNestedQueryLazyWithoutReceiverRunsEagerly(c *C) {
	runner := newFakeRunner()
	runner.results["findLines"] = []any{line{SKU: "widget", Qty: 3}}
	owner := &spec.Mapping{
		ID:   "order",
		Type: reflect.TypeOf(order{}),
		Properties: []*spec.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "id", Property: "Lines", NestedQuery: "findLines", Lazy: true},
		},
	}
	owner.Finish()
	e := newTestEngine(c, Config{}, runner, owner)
	out := collect(c, e, rowset.Static([]string{"id"}, [][]any{{int64(1)}}), "order", Window{})
	c.Assert(out, HasLen, 1)
	c.Check(runner.calls, Equals, 1)
	c.Assert(out[0].(*order).Lines, HasLen, 1)
}

type money struct {
	Amount   int64
	Currency string
}

func newMoney(amount int64, currency string) money {
	return money{Amount: amount, Currency: currency}
}

func (s *engineSuite) TestConstructorMapping(c *C) {
	registry := spec.NewRegistry()
	c.Assert(registry.RegisterConstructor(newMoney), IsNil)
	m := &spec.Mapping{
		ID:   "money",
		Type: reflect.TypeOf(money{}),
		Constructor: []*spec.Binding{
			{Column: "amount", ArgType: reflect.TypeOf(int64(0))},
			{Column: "currency", ArgType: reflect.TypeOf("")},
		},
	}
	m.Finish()
	c.Assert(registry.Add(m), IsNil)
	e := New(registry, typeconv.NewRegistry(), Config{}, nil, nil)
	var out []any
	err := e.Materialize(
		rowset.Static([]string{"amount", "currency"}, [][]any{{int64(1250), "EUR"}}),
		"money", Window{},
		func(v any) bool { out = append(out, v); return true },
	)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 1)
	c.Check(*out[0].(*money), Equals, money{Amount: 1250, Currency: "EUR"})
}

func (s *engineSuite) TestConstructorAllNullArgsSuppressed(c *C) {
	registry := spec.NewRegistry()
	c.Assert(registry.RegisterConstructor(newMoney), IsNil)
	m := &spec.Mapping{
		ID:   "money",
		Type: reflect.TypeOf(money{}),
		Constructor: []*spec.Binding{
			{Column: "amount", ArgType: reflect.TypeOf(int64(0))},
			{Column: "currency", ArgType: reflect.TypeOf("")},
		},
	}
	m.Finish()
	c.Assert(registry.Add(m), IsNil)
	e := New(registry, typeconv.NewRegistry(), Config{}, nil, nil)
	var out []any
	err := e.Materialize(
		rowset.Static([]string{"amount", "currency"}, [][]any{{nil, nil}}),
		"money", Window{},
		func(v any) bool { out = append(out, v); return true },
	)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 1)
	c.Check(out[0], IsNil)
}

type labelled interface {
	Label() string
}

type tag struct {
	ID   int
	Name string
}

func (t *tag) Label() string { return t.Name }

func newTag(id int64, name string) *tag { return &tag{ID: int(id), Name: name} }

func (s *engineSuite) TestSignatureInference(c *C) {
	registry := spec.NewRegistry()
	c.Assert(registry.RegisterConstructor(newTag), IsNil)
	m := &spec.Mapping{
		ID:   "tag",
		Type: reflect.TypeOf((*labelled)(nil)).Elem(),
	}
	m.Finish()
	c.Assert(registry.Add(m), IsNil)
	e := New(registry, typeconv.NewRegistry(), Config{}, nil, nil)
	var out []any
	err := e.Materialize(
		rowset.Static([]string{"id", "name"}, [][]any{{int64(7), "urgent"}}),
		"tag", Window{},
		func(v any) bool { out = append(out, v); return true },
	)
	c.Assert(err, IsNil)
	c.Assert(out, HasLen, 1)
	// The registered constructor matches the two columns by arity and
	// converter availability.
	c.Check(out[0].(labelled).Label(), Equals, "urgent")
	c.Check(out[0].(*tag).ID, Equals, 7)
}

func (s *engineSuite) TestSignatureInferenceNoMatch(c *C) {
	registry := spec.NewRegistry()
	c.Assert(registry.RegisterConstructor(newTag), IsNil)
	m := &spec.Mapping{
		ID:   "tag",
		Type: reflect.TypeOf((*labelled)(nil)).Elem(),
	}
	m.Finish()
	c.Assert(registry.Add(m), IsNil)
	e := New(registry, typeconv.NewRegistry(), Config{}, nil, nil)
	err := e.Materialize(
		rowset.Static([]string{"id", "name", "extra"}, [][]any{{int64(7), "urgent", int64(1)}}),
		"tag", Window{}, nil,
	)
	c.Assert(err, ErrorMatches, `.*no registered constructor can build .*`)
}

func (s *engineSuite) TestScalarTarget(c *C) {
	m := &spec.Mapping{ID: "name", Type: reflect.TypeOf("")}
	m.Finish()
	e := newTestEngine(c, Config{}, nil, m)
	out := collect(c, e, rowset.Static([]string{"name"}, [][]any{{"ada"}, {"bob"}}), "name", Window{})
	c.Assert(out, HasLen, 2)
	c.Check(out[0], Equals, "ada")
	c.Check(out[1], Equals, "bob")
}

func (s *engineSuite) TestMapTarget(c *C) {
	m := &spec.Mapping{ID: "row", Type: reflect.TypeOf(map[string]any{})}
	m.Finish()
	e := newTestEngine(c, Config{AutoMapping: spec.AutoPartial}, nil, m)
	out := collect(c, e, rowset.Static([]string{"id", "name"}, [][]any{{int64(1), "ada"}}), "row", Window{})
	c.Assert(out, HasLen, 1)
	row := out[0].(map[string]any)
	c.Check(row["id"], Equals, int64(1))
	c.Check(row["name"], Equals, "ada")
}

func (s *engineSuite) TestUnknownMapping(c *C) {
	e := newTestEngine(c, Config{}, nil)
	err := e.Materialize(rowset.Static([]string{"x"}, nil), "missing", Window{}, nil)
	c.Assert(err, ErrorMatches, `.*mapping not registered.*`)
}
