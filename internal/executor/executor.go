// Package executor runs validated statements with a row-limit safety net
// and a hard deadline. It never retries: re-running an expensive query
// without the caller knowing is unsafe policy, unlike the model-call path.
package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/logging"
)

const (
	// DefaultMaxRows caps result sets when the statement declares no bound
	DefaultMaxRows = 1000

	// DefaultTimeout bounds a single query execution
	DefaultTimeout = 30 * time.Second
)

// Result is the shaped outcome of one execution
type Result struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount        int      `json:"row_count"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	LimitApplied    bool     `json:"limit_applied"`
}

// Executor executes validated read-only statements against a connection
type Executor struct {
	maxRows int
	timeout time.Duration
	logger  *logging.Logger
}

// New creates an executor. Non-positive maxRows or timeout fall back to the
// package defaults.
func New(maxRows int, timeout time.Duration, logger *logging.Logger) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Executor{maxRows: maxRows, timeout: timeout, logger: logger}
}

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// ApplyRowLimit appends a LIMIT immediately before the terminator when the
// statement declares none. An existing bound is never touched, even when it
// exceeds maxRows: overriding an explicit caller choice silently would
// change query semantics without their knowledge. When the statement's last
// line trails off into a -- comment, the LIMIT goes on its own line so the
// comment cannot swallow it.
func ApplyRowLimit(statement string, maxRows int) (string, bool) {
	if limitPattern.MatchString(statement) {
		return statement, false
	}

	trimmed := strings.TrimSpace(statement)

	terminator := ""
	if strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimRight(strings.TrimSuffix(trimmed, ";"), " \t\n")
		terminator = ";"
	}

	if lastLineHasComment(trimmed) {
		return fmt.Sprintf("%s\nLIMIT %d%s", trimmed, maxRows, terminator), true
	}

	return fmt.Sprintf("%s LIMIT %d%s", trimmed, maxRows, terminator), true
}

func lastLineHasComment(statement string) bool {
	if idx := strings.LastIndexByte(statement, '\n'); idx >= 0 {
		statement = statement[idx+1:]
	}

	return strings.Contains(statement, "--")
}

type queryOutcome struct {
	result *db.ResultSet
	err    error
}

// Execute runs one validated statement under the executor's deadline. On
// deadline expiry the caller gets a timeout failure and any result the
// backend eventually produces is discarded, never delivered late.
func (e *Executor) Execute(ctx context.Context, conn db.Conn, statement string) (*Result, error) {
	statement, limitApplied := ApplyRowLimit(statement, e.maxRows)

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.WithFields(map[string]any{
		"sql":           statement,
		"limit_applied": limitApplied,
	}).Debug("executing query")

	started := time.Now()

	// Buffered so a query that finishes after the deadline does not leak a
	// blocked goroutine; its outcome is simply dropped.
	outcome := make(chan queryOutcome, 1)

	go func() {
		result, err := conn.QueryAll(queryCtx, statement)
		outcome <- queryOutcome{result: result, err: err}
	}()

	select {
	case <-queryCtx.Done():
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrTypeExecution, "query canceled")
		}

		e.logger.WithField("sql", statement).Warn("query exceeded execution deadline")

		return nil, errors.NewTimeoutError(e.timeout.Seconds())

	case out := <-outcome:
		if out.err != nil {
			if queryCtx.Err() == context.DeadlineExceeded {
				return nil, errors.NewTimeoutError(e.timeout.Seconds())
			}

			return nil, errors.Wrap(out.err, errors.ErrTypeExecution, "query execution failed")
		}

		elapsed := time.Since(started).Milliseconds()

		e.logger.WithFields(map[string]any{
			"rows":       len(out.result.Rows),
			"elapsed_ms": elapsed,
		}).Debug("query completed")

		return &Result{
			Columns:         out.result.Columns,
			Rows:            out.result.Rows,
			RowCount:        len(out.result.Rows),
			ExecutionTimeMs: elapsed,
			LimitApplied:    limitApplied,
		}, nil
	}
}

// MaxRows returns the configured row ceiling
func (e *Executor) MaxRows() int {
	return e.maxRows
}
