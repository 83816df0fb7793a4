package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver (pgx)
	_ "modernc.org/sqlite"             // SQLite driver (pure Go)

	"github.com/askdb/askdb/internal/config"
)

// Row is a single result row keyed by column name
type Row map[string]any

// ResultSet holds rows in column order so callers can render them faithfully
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Health reports the outcome of a connectivity probe
type Health struct {
	Healthy bool   `json:"healthy"`
	Dialect string `json:"dialect"`
	Error   string `json:"error,omitempty"`
}

// Conn is the connection handle the rest of the system depends on. The
// backend-specific transport stays behind it.
type Conn interface {
	QueryAll(ctx context.Context, query string, args ...any) (*ResultSet, error)
	QueryOne(ctx context.Context, query string, args ...any) (Row, bool, error)
	HealthCheck(ctx context.Context) Health
	Dialect() Dialect
	DatabaseName() string
	Close() error
}

// DB implements Conn over database/sql with connection pooling
type DB struct {
	db      *sql.DB
	dialect Dialect
	dbName  string
}

// Open opens a pooled connection for the configured backend and verifies it
func Open(cfg config.DatabaseConfig) (*DB, error) {
	dialect, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
		sqlDB.SetConnMaxLifetime(lifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		db:      sqlDB,
		dialect: dialect,
		dbName:  dialect.DatabaseName(cfg.DSN),
	}, nil
}

// NewFromSQL wraps an existing *sql.DB. Used by tests and by callers that
// manage their own pool.
func NewFromSQL(sqlDB *sql.DB, dialect Dialect, dbName string) *DB {
	return &DB{db: sqlDB, dialect: dialect, dbName: dbName}
}

// QueryAll runs a query and materializes every row
func (d *DB) QueryAll(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &ResultSet{Columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, v := range values {
			// MySQL returns text columns as []byte; normalize for callers.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// QueryOne runs a query expected to yield at most one row. The boolean is
// false when no row matched.
func (d *DB) QueryOne(ctx context.Context, query string, args ...any) (Row, bool, error) {
	result, err := d.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}

	if len(result.Rows) == 0 {
		return nil, false, nil
	}

	row := make(Row, len(result.Columns))
	for i, col := range result.Columns {
		row[col] = result.Rows[0][i]
	}

	return row, true, nil
}

// HealthCheck probes the connection
func (d *DB) HealthCheck(ctx context.Context) Health {
	health := Health{Dialect: d.dialect.String()}

	if err := d.db.PingContext(ctx); err != nil {
		health.Error = err.Error()
		return health
	}

	health.Healthy = true

	return health
}

// Dialect returns the backend selected at open time
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// DatabaseName returns the logical database name derived from the DSN
func (d *DB) DatabaseName() string {
	return d.dbName
}

// Close releases the connection pool
func (d *DB) Close() error {
	return d.db.Close()
}
