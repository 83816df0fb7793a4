// Package schema holds the normalized database structure fed to prompt
// building, plus the introspectors that produce it and the cache that
// amortizes them.
package schema

import (
	"fmt"
	"sort"
)

// Column describes one column in a table, in declared ordinal position
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   bool    `json:"nullable"`
	PrimaryKey bool    `json:"primary_key"`
	Default    *string `json:"default,omitempty"`
}

// ForeignKey is a directed edge from a local column to a referenced column
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Table describes one base table
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Schema is the normalized structure of one database. It is only ever
// produced by introspection, never constructed by hand, and is treated as
// immutable once built.
type Schema struct {
	DatabaseName string           `json:"database_name"`
	Dialect      string           `json:"dialect"`
	Tables       map[string]Table `json:"tables"`
}

// TableNames returns table names in deterministic sorted order
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Key builds the cache key for a dialect/database pair
func Key(dialect, databaseName string) string {
	return fmt.Sprintf("%s:%s", dialect, databaseName)
}
