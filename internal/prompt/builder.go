// Package prompt renders an introspected schema plus the generation ground
// rules into the instruction text sent to the model. Building is a pure
// function of its inputs, so output is compared against goldens in tests.
package prompt

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/schema"
)

// UploadTablePrefix marks tables created from user-uploaded files. The rule
// set keeps them isolated from the base tables unless the question
// explicitly references both.
const UploadTablePrefix = "upload_"

// DefaultMaxRows is surfaced in the rules when no ceiling is configured
const DefaultMaxRows = 1000

// Options tune the rendered instruction text
type Options struct {
	// Dialect names the SQL dialect the model should target. Defaults to
	// the schema's own dialect.
	Dialect string

	// MaxRows is the row ceiling the executor enforces regardless; it is
	// stated in the rules so the model can bound queries itself.
	MaxRows int
}

// Build renders the instruction document for one schema. Identical inputs
// produce byte-identical output: tables are rendered in sorted order and
// columns in their declared ordinal position.
func Build(s *schema.Schema, opts Options) string {
	dialect := opts.Dialect
	if dialect == "" {
		dialect = s.Dialect
	}

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "You are an expert at converting natural language questions into %s SQL queries.\n", dialect)
	fmt.Fprintf(&sb, "Convert the user's question into a single valid %s SELECT statement using the schema below.\n\n", dialect)

	fmt.Fprintf(&sb, "Database: %s\n\n", s.DatabaseName)
	sb.WriteString("Schema:\n\n")

	for _, tableName := range s.TableNames() {
		writeTable(&sb, s.Tables[tableName])
	}

	sb.WriteString("Rules:\n")
	sb.WriteString("1. Respond with the SQL statement only. No commentary, no markdown fences.\n")
	sb.WriteString("2. Only SELECT or WITH statements are acceptable. Never produce INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, or any other modifying statement.\n")
	sb.WriteString("3. Prefer explicit column lists over SELECT *.\n")
	sb.WriteString("4. For questions asking for the top or bottom N of something, use ORDER BY with LIMIT.\n")
	fmt.Fprintf(&sb, "5. Results are capped at %d rows. Add a LIMIT clause when the question implies fewer.\n", maxRows)
	fmt.Fprintf(&sb, "6. Tables prefixed %q hold user-uploaded data. Do not combine them with other tables unless the question explicitly references both.\n", UploadTablePrefix)
	sb.WriteString("7. Use only tables and columns that appear in the schema above.\n")

	return sb.String()
}

func writeTable(sb *strings.Builder, table schema.Table) {
	fmt.Fprintf(sb, "Table: %s\n", table.Name)
	sb.WriteString("Columns:\n")

	for _, column := range table.Columns {
		fmt.Fprintf(sb, "  - %s (%s", column.Name, column.Type)

		if column.PrimaryKey {
			sb.WriteString(", primary key")
		}

		if !column.Nullable {
			sb.WriteString(", not null")
		}

		sb.WriteString(")\n")
	}

	if len(table.ForeignKeys) > 0 {
		sb.WriteString("Foreign keys:\n")

		for _, fk := range table.ForeignKeys {
			fmt.Fprintf(sb, "  - %s -> %s.%s\n", fk.Column, fk.RefTable, fk.RefColumn)
		}
	}

	sb.WriteString("\n")
}
