// Package history keeps an append-only record of every generation and
// execution attempt, with aggregate statistics. Recording is best-effort
// infrastructure: callers log a failed write and move on, they never fail
// the primary request over it.
package history

import (
	"context"
	"time"
)

// Entry records one end-to-end attempt. Entries are immutable once recorded.
type Entry struct {
	ID               string    `json:"id"`
	Question         string    `json:"question"`
	SQL              string    `json:"sql,omitempty"` // empty when generation failed
	Success          bool      `json:"success"`
	RowCount         int       `json:"row_count"`
	GenerationTimeMs int64     `json:"generation_time_ms"`
	ExecutionTimeMs  int64     `json:"execution_time_ms"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Filter narrows Query results
type Filter struct {
	// Success filters by outcome when set
	Success *bool

	// Since keeps only entries at or after this time when non-zero
	Since time.Time
}

// Stats aggregates the recorded attempts
type Stats struct {
	Total               int     `json:"total"`
	Successful          int     `json:"successful"`
	Failed              int     `json:"failed"`
	SuccessRate         float64 `json:"success_rate"`
	AvgGenerationTimeMs float64 `json:"avg_generation_time_ms"`
	AvgExecutionTimeMs  float64 `json:"avg_execution_time_ms"`
}

// Recorder is the append-only history store. Query returns entries in
// reverse-chronological order, newest first.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter, limit int) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func matches(entry Entry, filter Filter) bool {
	if filter.Success != nil && entry.Success != *filter.Success {
		return false
	}

	if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
		return false
	}

	return true
}
