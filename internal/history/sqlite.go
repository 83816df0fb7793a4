package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/askdb/askdb/internal/errors"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS query_history (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	sql_text TEXT,
	success INTEGER NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	generation_time_ms INTEGER NOT NULL DEFAULT 0,
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	error_text TEXT,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_history_timestamp ON query_history(timestamp);
`

// SQLiteStore is a persisted Recorder backed by its own SQLite database,
// separate from the database being queried. It grows unbounded; pruning is
// an operator concern.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the history database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to create history directory")
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to open history database")
	}

	// The history database is single-writer; one connection avoids
	// SQLITE_BUSY contention.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(createHistoryTable); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to initialize history schema")
	}

	return &SQLiteStore{db: sqlDB}, nil
}

// Record appends an entry, filling in the ID and timestamp when absent
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history
			(id, question, sql_text, success, row_count, generation_time_ms, execution_time_ms, error_text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Question, entry.SQL, entry.Success, entry.RowCount,
		entry.GenerationTimeMs, entry.ExecutionTimeMs, entry.Error, entry.Timestamp)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeHistory, "failed to record history entry")
	}

	return nil
}

// Query returns matching entries newest first, up to limit
func (s *SQLiteStore) Query(ctx context.Context, filter Filter, limit int) ([]Entry, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := `
		SELECT id, question, sql_text, success, row_count,
		       generation_time_ms, execution_time_ms, error_text, timestamp
		FROM query_history`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to query history")
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.SQL, &entry.Success,
			&entry.RowCount, &entry.GenerationTimeMs, &entry.ExecutionTimeMs,
			&entry.Error, &entry.Timestamp); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to scan history entry")
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeHistory, "failed to read history")
	}

	return entries, nil
}

// Stats aggregates every recorded entry
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var (
		stats      Stats
		genAvg     sql.NullFloat64
		execAvg    sql.NullFloat64
		successful sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success), 0),
		       AVG(generation_time_ms),
		       AVG(execution_time_ms)
		FROM query_history`).Scan(&stats.Total, &successful, &genAvg, &execAvg)
	if err != nil {
		return Stats{}, errors.Wrap(err, errors.ErrTypeHistory, "failed to aggregate history stats")
	}

	stats.Successful = int(successful.Int64)
	stats.Failed = stats.Total - stats.Successful

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
		stats.AvgGenerationTimeMs = genAvg.Float64
		stats.AvgExecutionTimeMs = execAvg.Float64
	}

	return stats, nil
}

// Close releases the history database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
