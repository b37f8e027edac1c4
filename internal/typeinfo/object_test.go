// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"testing"

	. "gopkg.in/check.v1"
)

func TestTypeInfo(t *testing.T) { TestingT(t) }

type typeInfoSuite struct{}

var _ = Suite(&typeInfoSuite{})

type line struct {
	ID  int    `db:"line_id"`
	SKU string `db:"sku"`
}

type order struct {
	ID       int     `db:"id"`
	Total    float64 `db:"total"`
	Note     string
	Lines    []line `db:"lines"`
	Shipping *line  `db:"shipping"`

	hidden int
}

func (s *typeInfoSuite) TestGetInfo(c *C) {
	info, err := GetInfo(reflect.TypeOf(order{}))
	c.Assert(err, IsNil)

	f, ok := info.FindField("id", false)
	c.Assert(ok, Equals, true)
	c.Assert(f.Name, Equals, "ID")
	c.Assert(f.Property(), Equals, "id")

	// Field name works as well as the tag, case-insensitively.
	f, ok = info.FindField("Total", false)
	c.Assert(ok, Equals, true)
	c.Assert(f.Tag, Equals, "total")

	// Untagged fields are addressed by name.
	f, ok = info.FindField("note", false)
	c.Assert(ok, Equals, true)
	c.Assert(f.Property(), Equals, "Note")

	_, ok = info.FindField("hidden", false)
	c.Assert(ok, Equals, false)
}

func (s *typeInfoSuite) TestGetInfoCached(c *C) {
	info1, err := GetInfo(reflect.TypeOf(order{}))
	c.Assert(err, IsNil)
	info2, err := GetInfo(reflect.TypeOf(&order{}))
	c.Assert(err, IsNil)
	c.Assert(info1, Equals, info2)
}

func (s *typeInfoSuite) TestGetInfoNonStruct(c *C) {
	_, err := GetInfo(reflect.TypeOf(42))
	c.Assert(err, ErrorMatches, "cannot reflect non-struct type int")
}

func (s *typeInfoSuite) TestFindFieldUnderscoreToCamel(c *C) {
	type row struct {
		ParentID int
	}
	info, err := GetInfo(reflect.TypeOf(row{}))
	c.Assert(err, IsNil)

	_, ok := info.FindField("parent_id", false)
	c.Assert(ok, Equals, false)
	f, ok := info.FindField("parent_id", true)
	c.Assert(ok, Equals, true)
	c.Assert(f.Name, Equals, "ParentID")
}

func (s *typeInfoSuite) TestIsCollection(c *C) {
	c.Assert(IsCollection(reflect.TypeOf([]line{})), Equals, true)
	c.Assert(IsCollection(reflect.TypeOf([]*line{})), Equals, true)
	c.Assert(IsCollection(reflect.TypeOf([]byte{})), Equals, false)
	c.Assert(IsCollection(reflect.TypeOf(line{})), Equals, false)
	c.Assert(IsCollection(nil), Equals, false)
}

func (s *typeInfoSuite) TestObjectSetGet(c *C) {
	o, err := Describe(&order{})
	c.Assert(err, IsNil)

	c.Assert(o.Set("id", 7), IsNil)
	c.Assert(o.Set("total", 9.99), IsNil)
	v, err := o.Get("id")
	c.Assert(err, IsNil)
	c.Assert(v, Equals, 7)

	// Numeric widening from driver values.
	c.Assert(o.Set("id", int64(8)), IsNil)
	v, err = o.Get("id")
	c.Assert(err, IsNil)
	c.Assert(v, Equals, 8)

	err = o.Set("nope", 1)
	c.Assert(err, ErrorMatches, `type typeinfo.order has no property "nope"`)
}

func (s *typeInfoSuite) TestObjectSetNil(c *C) {
	target := &order{ID: 3}
	o, err := Describe(target)
	c.Assert(err, IsNil)
	c.Assert(o.Set("id", nil), IsNil)
	c.Assert(target.ID, Equals, 0)
}

func (s *typeInfoSuite) TestObjectSetPointerBridging(c *C) {
	target := &order{}
	o, err := Describe(target)
	c.Assert(err, IsNil)

	// *line into a *line property.
	c.Assert(o.Set("shipping", &line{ID: 1}), IsNil)
	c.Assert(target.Shipping.ID, Equals, 1)

	// *line appended into a []line property gets dereferenced.
	c.Assert(o.Append("lines", &line{ID: 2}), IsNil)
	c.Assert(o.Append("lines", &line{ID: 3}), IsNil)
	c.Assert(target.Lines, DeepEquals, []line{{ID: 2}, {ID: 3}})
}

func (s *typeInfoSuite) TestObjectAppendNonCollection(c *C) {
	o, err := Describe(&order{})
	c.Assert(err, IsNil)
	err = o.Append("id", 1)
	c.Assert(err, ErrorMatches, ".*is not a collection")
	c.Assert(o.IsCollectionProperty("lines"), Equals, true)
	c.Assert(o.IsCollectionProperty("id"), Equals, false)
}

func (s *typeInfoSuite) TestMapTarget(c *C) {
	m := map[string]any{}
	o, err := Describe(m)
	c.Assert(err, IsNil)
	c.Assert(o.IsMap(), Equals, true)
	c.Assert(o.FindProperty("anything", false), Equals, "anything")

	c.Assert(o.Set("id", int64(1)), IsNil)
	c.Assert(m["id"], Equals, int64(1))

	c.Assert(o.Append("kids", "a"), IsNil)
	c.Assert(o.Append("kids", "b"), IsNil)
	c.Assert(m["kids"], DeepEquals, []any{"a", "b"})
	c.Assert(o.IsCollectionProperty("kids"), Equals, true)
}

func (s *typeInfoSuite) TestDescribeRejects(c *C) {
	_, err := Describe(nil)
	c.Assert(err, NotNil)
	_, err = Describe(order{})
	c.Assert(err, ErrorMatches, "cannot describe struct target.*")
	var p *order
	_, err = Describe(p)
	c.Assert(err, NotNil)
	_, err = Describe(map[int]any{})
	c.Assert(err, ErrorMatches, "cannot describe map with int keys")
}

func (s *typeInfoSuite) TestInstantiate(c *C) {
	v, err := Instantiate(reflect.TypeOf(order{}))
	c.Assert(err, IsNil)
	_, ok := v.(*order)
	c.Assert(ok, Equals, true)

	v, err = Instantiate(reflect.TypeOf(map[string]any{}))
	c.Assert(err, IsNil)
	_, ok = v.(map[string]any)
	c.Assert(ok, Equals, true)

	_, err = Instantiate(reflect.TypeOf(42))
	c.Assert(err, ErrorMatches, "cannot instantiate int")
}
