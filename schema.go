package lazydb

import (
	"fmt"
	"slices"
	"strings"
)

// Schema describes the tables a database handle exposes. Query and the
// record operations validate table names against the schema, not against
// whatever buckets the live store happens to have.
type Schema struct {
	tables            []*Table
	tablesByLowerName map[string]*Table
}

func NewSchema() *Schema {
	return &Schema{
		tablesByLowerName: make(map[string]*Table),
	}
}

func (scm *Schema) Tables() []*Table {
	return slices.Clone(scm.tables)
}

func (scm *Schema) TableNamed(name string) *Table {
	return scm.tablesByLowerName[strings.ToLower(name)]
}

// Table is a named collection of records keyed by KeyField, with zero or
// more secondary index fields.
type Table struct {
	name    string
	indexes []string
}

// AddTable defines a table. Index fields may be added here or later via
// AddIndex, but only before the schema is handed to Open.
func AddTable(scm *Schema, name string, indexes ...string) *Table {
	lower := strings.ToLower(name)
	if scm.tablesByLowerName[lower] != nil {
		panic(fmt.Errorf("duplicate table %q", name))
	}
	tbl := &Table{name: name, indexes: slices.Clone(indexes)}
	scm.tables = append(scm.tables, tbl)
	scm.tablesByLowerName[lower] = tbl
	return tbl
}

func (tbl *Table) AddIndex(field string) *Table {
	if tbl.Indexed(field) {
		panic(fmt.Errorf("duplicate index %s.%s", tbl.name, field))
	}
	tbl.indexes = append(tbl.indexes, field)
	return tbl
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) Indexes() []string {
	return slices.Clone(tbl.indexes)
}

func (tbl *Table) Indexed(field string) bool {
	return field == KeyField || slices.Contains(tbl.indexes, field)
}
