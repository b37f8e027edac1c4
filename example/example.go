// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package example

import (
	"database/sql"
	"fmt"

	"github.com/canonical/rowgraph"

	_ "github.com/mattn/go-sqlite3"
)

type Location struct {
	ID   int    `db:"room_id"`
	Name string `db:"name"`
}

type Person struct {
	Name string `db:"name"`
	ID   int    `db:"id"`
	Team string `db:"team"`
	Room *Location
}

func example() {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	defer sqldb.Close()

	_, err = sqldb.Exec(`
	CREATE TABLE person (
		name text,
		id integer,
		team text,
		room_id integer
	);
	CREATE TABLE location (
		room_id integer,
		name text
	)`)
	if err != nil {
		panic(err)
	}
	inserts := []string{
		"INSERT INTO person VALUES ('Fred', 30, 'engineering', 1)",
		"INSERT INTO person VALUES ('Mark', 20, 'engineering', 1)",
		"INSERT INTO person VALUES ('Mary', 40, 'marketing', 2)",
		"INSERT INTO location VALUES (1, 'The Basement')",
		"INSERT INTO location VALUES (2, 'Floor 2')",
	}
	for _, insert := range inserts {
		if _, err := sqldb.Exec(insert); err != nil {
			panic(err)
		}
	}

	schema := rowgraph.NewSchema(rowgraph.Config{})
	schema.MustAdd(rowgraph.Mapping{
		ID:   "location",
		Type: Location{},
		Bindings: []rowgraph.Binding{
			{Column: "room_id", Property: "ID", ID: true},
			{Column: "name", Property: "Name"},
		},
	})
	schema.MustAdd(rowgraph.Mapping{
		ID:   "person",
		Type: Person{},
		Bindings: []rowgraph.Binding{
			{Column: "id", Property: "ID", ID: true},
			{Column: "name", Property: "Name"},
			{Column: "team", Property: "Team"},
			{Property: "Room", Mapping: "location", Prefix: "loc_"},
		},
	})

	rows, err := sqldb.Query(`
	SELECT p.id, p.name, p.team, l.room_id AS loc_room_id, l.name AS loc_name
	FROM person p JOIN location l ON l.room_id = p.room_id
	ORDER BY p.id`)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	people, err := schema.Materializer().All(rows, "person", rowgraph.Window{})
	if err != nil {
		panic(err)
	}
	for _, p := range people {
		person := p.(*Person)
		fmt.Printf("%s (%s) sits in %s\n", person.Name, person.Team, person.Room.Name)
	}
}
