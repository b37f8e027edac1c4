// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package demo

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/rowgraph"
)

type Person struct {
	Name     string `db:"name"`
	Height   int    `db:"height_cm"`
	HomeTown *Place
}

type Place struct {
	Name       string `db:"town_name"`
	Population int    `db:"population"`
}

func example() error {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer sqldb.Close()

	_, err = sqldb.Exec(`
		CREATE TABLE people (
			name text,
			height_cm integer,
			home_town text
		);
		CREATE TABLE location (
			town_name text,
			population integer
		);`)
	if err != nil {
		return err
	}
	inserts := []string{
		"INSERT INTO people VALUES ('Jim', 150, 'Lazyville')",
		"INSERT INTO people VALUES ('Jane', 175, 'Steadytown')",
		"INSERT INTO location VALUES ('Lazyville', 50000)",
		"INSERT INTO location VALUES ('Steadytown', 140000)",
	}
	for _, insert := range inserts {
		if _, err := sqldb.Exec(insert); err != nil {
			return err
		}
	}

	// The home town is resolved through a separate statement per person,
	// executed by the runner when the row is materialized.
	runner := rowgraph.NewDBRunner(sqldb)
	defer runner.Close()
	schema := rowgraph.NewSchema(rowgraph.Config{}, rowgraph.WithQueryRunner(runner))
	runner.Bind(schema)

	schema.MustAdd(rowgraph.Mapping{ID: "place", Type: Place{}})
	schema.MustAdd(rowgraph.Mapping{
		ID:   "person",
		Type: Person{},
		Bindings: []rowgraph.Binding{
			{Column: "name", Property: "Name", ID: true},
			{Column: "height_cm", Property: "Height"},
			{Column: "home_town", Property: "HomeTown", Query: "place-by-name"},
		},
	})
	err = runner.Register("place-by-name",
		"SELECT town_name, population FROM location WHERE town_name = ?", "place")
	if err != nil {
		return err
	}

	rows, err := sqldb.Query("SELECT name, height_cm, home_town FROM people ORDER BY name")
	if err != nil {
		return err
	}
	defer rows.Close()

	people, err := schema.Materializer().All(rows, "person", rowgraph.Window{})
	if err != nil {
		return err
	}
	for _, p := range people {
		person := p.(*Person)
		fmt.Printf("%s is from %s (pop. %d)\n",
			person.Name, person.HomeTown.Name, person.HomeTown.Population)
	}
	return nil
}
