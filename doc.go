/*
Package rowgraph materializes typed object graphs from the flat rows of SQL
result sets.

A query that joins parents to children returns the parent's columns repeated
on every child row. rowgraph turns those rows back into objects: one parent
value per distinct identity, each carrying its children, however deep the
joins nest. The shape of the transformation is declared once, as a [Mapping]
registered on a [Schema], and applied to any number of query executions.

rowgraph runs no SQL of its own. It consumes the rows the application's
queries produce, through database/sql or as plain values, and stays
independent of the driver in use.

# Basics

A mapping binds result set columns to the properties of a target type.
Struct properties are matched through `db` tags or field names:

	type Line struct {
		SKU string `db:"sku"`
		Qty int    `db:"qty"`
	}

	type Order struct {
		ID       int    `db:"id"`
		Customer string `db:"customer"`
		Lines    []Line
	}

	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{ID: "line", Type: Line{}})
	schema.MustAdd(rowgraph.Mapping{
		ID:   "order",
		Type: Order{},
		Bindings: []rowgraph.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "customer", Property: "Customer"},
			{Property: "Lines", Mapping: "line", Prefix: "l_"},
		},
	})

Rows of a join like

	SELECT o.id, o.customer, l.sku AS l_sku, l.qty AS l_qty
	FROM orders o LEFT JOIN lines l ON l.order_id = o.id

then materialize into one *Order per order, lines collected:

	orders, err := schema.Materializer().All(rows, "order", rowgraph.Window{})

Consecutive rows sharing the values of the ID bindings refine one object
rather than producing duplicates. Columns no binding claims are mapped
automatically onto properties with matching names, under the behaviour
configured in [Config].

# Beyond one result set

Mappings can also select a sub-mapping per row from a column value
([Discriminator]), resolve properties through separate statements run per
row ([Binding].Query), defer those statements until first access
([Binding].Lazy with [LazyProperties]), and fill associations from a later
result set of the same statement ([Binding].ResultSet).
*/
package rowgraph
