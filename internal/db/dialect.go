package db

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Dialect identifies one of the supported database backends. The set is
// closed; every backend-specific decision hangs off the Dialect value chosen
// once when the connection is opened.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectMySQL
	DialectPostgres
)

// String returns the canonical lower-case dialect name
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectMySQL:
		return "mysql"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// DriverName returns the database/sql driver name for the dialect
func (d Dialect) DriverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectMySQL:
		return "mysql"
	case DialectPostgres:
		return "pgx"
	default:
		return ""
	}
}

// ParseDialect converts a configuration string into a Dialect
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported dialect: %s (must be sqlite, mysql, or postgres)", name)
	}
}

// DatabaseName extracts the logical database name from a DSN. It feeds the
// schema cache key, so it only needs to be stable, not exhaustive.
func (d Dialect) DatabaseName(dsn string) string {
	switch d {
	case DialectSQLite:
		// File path, possibly with ?mode=... options appended.
		path := dsn
		if idx := strings.IndexByte(path, '?'); idx >= 0 {
			path = path[:idx]
		}

		name := filepath.Base(path)

		return strings.TrimSuffix(name, filepath.Ext(name))
	case DialectMySQL:
		// user:pass@tcp(host:port)/dbname?params
		rest := dsn
		if idx := strings.LastIndexByte(rest, '/'); idx >= 0 {
			rest = rest[idx+1:]
		}

		if idx := strings.IndexByte(rest, '?'); idx >= 0 {
			rest = rest[:idx]
		}

		return rest
	case DialectPostgres:
		// URL form postgres://.../dbname or key=value form with dbname=...
		if u, err := url.Parse(dsn); err == nil && u.Path != "" {
			return strings.TrimPrefix(u.Path, "/")
		}

		for _, kv := range strings.Fields(dsn) {
			if name, ok := strings.CutPrefix(kv, "dbname="); ok {
				return name
			}
		}

		return ""
	default:
		return ""
	}
}

// ExplainPrefix returns the backend-native explain statement prefix
func (d Dialect) ExplainPrefix() string {
	if d == DialectSQLite {
		return "EXPLAIN QUERY PLAN "
	}

	return "EXPLAIN "
}
