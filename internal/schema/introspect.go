package schema

import (
	"context"
	"fmt"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/errors"
)

// Introspector reads a live database's metadata catalog into a Schema.
// Introspection is all-or-nothing: any metadata query failure aborts the
// whole call and no partial schema is returned.
type Introspector interface {
	Introspect(ctx context.Context, conn db.Conn) (*Schema, error)
}

// NewIntrospector returns the introspector for the given dialect. The
// backend decision is made here, once; callers only see the interface.
func NewIntrospector(dialect db.Dialect) Introspector {
	switch dialect {
	case db.DialectMySQL:
		return mysqlIntrospector{}
	case db.DialectPostgres:
		return postgresIntrospector{}
	default:
		return sqliteIntrospector{}
	}
}

type sqliteIntrospector struct{}

func (sqliteIntrospector) Introspect(ctx context.Context, conn db.Conn) (*Schema, error) {
	tables, err := conn.QueryAll(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to list tables")
	}

	schema := newSchema(conn)

	for _, row := range tables.Rows {
		tableName := asString(row[0])

		table := Table{Name: tableName}

		columns, err := conn.QueryAll(ctx, fmt.Sprintf("PRAGMA table_info(%q)", tableName))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read columns of %s", tableName)
		}

		// PRAGMA table_info: cid, name, type, notnull, dflt_value, pk
		for _, col := range columns.Rows {
			column := Column{
				Name:       asString(col[1]),
				Type:       asString(col[2]),
				Nullable:   asInt64(col[3]) == 0,
				PrimaryKey: asInt64(col[5]) > 0,
			}
			if col[4] != nil {
				def := asString(col[4])
				column.Default = &def
			}

			table.Columns = append(table.Columns, column)
		}

		fks, err := conn.QueryAll(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", tableName))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read foreign keys of %s", tableName)
		}

		// PRAGMA foreign_key_list: id, seq, table, from, to, ...
		for _, fk := range fks.Rows {
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
				Column:    asString(fk[3]),
				RefTable:  asString(fk[2]),
				RefColumn: asString(fk[4]),
			})
		}

		schema.Tables[tableName] = table
	}

	return schema, nil
}

type mysqlIntrospector struct{}

func (mysqlIntrospector) Introspect(ctx context.Context, conn db.Conn) (*Schema, error) {
	tables, err := conn.QueryAll(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to list tables")
	}

	schema := newSchema(conn)

	for _, row := range tables.Rows {
		tableName := asString(row[0])

		table := Table{Name: tableName}

		columns, err := conn.QueryAll(ctx, `
			SELECT column_name, column_type, is_nullable, column_key, column_default
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`, tableName)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read columns of %s", tableName)
		}

		for _, col := range columns.Rows {
			column := Column{
				Name:       asString(col[0]),
				Type:       asString(col[1]),
				Nullable:   asString(col[2]) == "YES",
				PrimaryKey: asString(col[3]) == "PRI",
			}
			if col[4] != nil {
				def := asString(col[4])
				column.Default = &def
			}

			table.Columns = append(table.Columns, column)
		}

		fks, err := conn.QueryAll(ctx, `
			SELECT column_name, referenced_table_name, referenced_column_name
			FROM information_schema.key_column_usage
			WHERE table_schema = DATABASE() AND table_name = ?
			  AND referenced_table_name IS NOT NULL
			ORDER BY ordinal_position`, tableName)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read foreign keys of %s", tableName)
		}

		for _, fk := range fks.Rows {
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
				Column:    asString(fk[0]),
				RefTable:  asString(fk[1]),
				RefColumn: asString(fk[2]),
			})
		}

		schema.Tables[tableName] = table
	}

	return schema, nil
}

type postgresIntrospector struct{}

func (postgresIntrospector) Introspect(ctx context.Context, conn db.Conn) (*Schema, error) {
	tables, err := conn.QueryAll(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeIntrospection, "failed to list tables")
	}

	schema := newSchema(conn)

	for _, row := range tables.Rows {
		tableName := asString(row[0])

		table := Table{Name: tableName}

		columns, err := conn.QueryAll(ctx, `
			SELECT c.column_name,
			       c.data_type,
			       c.is_nullable,
			       c.column_default,
			       CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
			FROM information_schema.columns c
			LEFT JOIN (
				SELECT ku.column_name
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage ku
					ON tc.constraint_name = ku.constraint_name
					AND tc.table_schema = ku.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = 'public'
					AND tc.table_name = $1
			) pk ON c.column_name = pk.column_name
			WHERE c.table_schema = 'public' AND c.table_name = $1
			ORDER BY c.ordinal_position`, tableName)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read columns of %s", tableName)
		}

		for _, col := range columns.Rows {
			column := Column{
				Name:       asString(col[0]),
				Type:       asString(col[1]),
				Nullable:   asString(col[2]) == "YES",
				PrimaryKey: asBool(col[4]),
			}
			if col[3] != nil {
				def := asString(col[3])
				column.Default = &def
			}

			table.Columns = append(table.Columns, column)
		}

		fks, err := conn.QueryAll(ctx, `
			SELECT ku.column_name,
			       ccu.table_name AS ref_table,
			       ccu.column_name AS ref_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage ku
				ON tc.constraint_name = ku.constraint_name
				AND tc.table_schema = ku.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON tc.constraint_name = ccu.constraint_name
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND tc.table_schema = 'public'
				AND tc.table_name = $1
			ORDER BY ku.ordinal_position`, tableName)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeIntrospection,
				"failed to read foreign keys of %s", tableName)
		}

		for _, fk := range fks.Rows {
			table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
				Column:    asString(fk[0]),
				RefTable:  asString(fk[1]),
				RefColumn: asString(fk[2]),
			})
		}

		schema.Tables[tableName] = table
	}

	return schema, nil
}

func newSchema(conn db.Conn) *Schema {
	return &Schema{
		DatabaseName: conn.DatabaseName(),
		Dialect:      conn.Dialect().String(),
		Tables:       make(map[string]Table),
	}
}

func asString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

func asInt64(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case int32:
		return int64(value)
	case float64:
		return int64(value)
	case string:
		if value == "1" || value == "true" {
			return 1
		}

		return 0
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	default:
		return asInt64(v) != 0
	}
}
