// Package engine wires the pipeline together: schema introspection through
// the cache, prompt building, completion with retry, sanitization, bounded
// execution, and history recording. Every dependency is injected so tests
// can run isolated instances.
package engine

import (
	"context"
	"time"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/logging"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/retry"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlguard"
)

// GenerateResult is the outcome of generation without execution
type GenerateResult struct {
	SQL              string   `json:"sql"`
	GenerationTimeMs int64    `json:"generation_time_ms"`
	SchemaUsed       []string `json:"schema_used"`
}

// QueryResult is the outcome of the full question-to-rows pipeline
type QueryResult struct {
	SQL              string   `json:"sql"`
	Columns          []string `json:"columns"`
	Rows             [][]any  `json:"rows"`
	RowCount         int      `json:"row_count"`
	GenerationTimeMs int64    `json:"generation_time_ms"`
	ExecutionTimeMs  int64    `json:"execution_time_ms"`
	LimitApplied     bool     `json:"limit_applied"`
}

// Engine orchestrates the question-to-SQL pipeline
type Engine struct {
	llm      llm.Service
	cache    *schema.Cache
	executor *executor.Executor
	recorder history.Recorder
	policy   retry.Policy
	logger   *logging.Logger
}

// New creates an engine from explicit dependencies
func New(service llm.Service, cache *schema.Cache, exec *executor.Executor,
	recorder history.Recorder, policy retry.Policy, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetLogger()
	}

	if policy.Retryable == nil {
		policy.Retryable = llm.IsRetryable
	}

	return &Engine{
		llm:      service,
		cache:    cache,
		executor: exec,
		recorder: recorder,
		policy:   policy,
		logger:   logger,
	}
}

// Generate converts a question into validated SQL without executing it.
// The attempt is recorded in history either way.
func (e *Engine) Generate(ctx context.Context, conn db.Conn, question string, opts llm.Options) (*GenerateResult, error) {
	result, err := e.generate(ctx, conn, question, opts)

	entry := history.Entry{Question: question}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.SQL = result.SQL
		entry.Success = true
		entry.GenerationTimeMs = result.GenerationTimeMs
	}

	e.record(ctx, entry)

	return result, err
}

// Execute validates and runs caller-supplied SQL. The SQL is as untrusted
// as model output and goes through the full sanitizer pipeline first.
func (e *Engine) Execute(ctx context.Context, conn db.Conn, rawSQL string) (*executor.Result, error) {
	statement, execResult, err := e.execute(ctx, conn, rawSQL)

	entry := history.Entry{SQL: statement}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Success = true
		entry.RowCount = execResult.RowCount
		entry.ExecutionTimeMs = execResult.ExecutionTimeMs
	}

	e.record(ctx, entry)

	return execResult, err
}

// QueryFromQuestion runs the full pipeline: question to SQL to rows, with
// one history entry covering both phases.
func (e *Engine) QueryFromQuestion(ctx context.Context, conn db.Conn, question string, opts llm.Options) (*QueryResult, error) {
	entry := history.Entry{Question: question}

	genResult, err := e.generate(ctx, conn, question, opts)
	if err != nil {
		entry.Error = err.Error()
		e.record(ctx, entry)

		return nil, err
	}

	entry.SQL = genResult.SQL
	entry.GenerationTimeMs = genResult.GenerationTimeMs

	_, execResult, err := e.execute(ctx, conn, genResult.SQL)
	if err != nil {
		entry.Error = err.Error()
		e.record(ctx, entry)

		return nil, err
	}

	entry.Success = true
	entry.RowCount = execResult.RowCount
	entry.ExecutionTimeMs = execResult.ExecutionTimeMs
	e.record(ctx, entry)

	return &QueryResult{
		SQL:              genResult.SQL,
		Columns:          execResult.Columns,
		Rows:             execResult.Rows,
		RowCount:         execResult.RowCount,
		GenerationTimeMs: genResult.GenerationTimeMs,
		ExecutionTimeMs:  execResult.ExecutionTimeMs,
		LimitApplied:     execResult.LimitApplied,
	}, nil
}

// ExplainPlan runs the backend's native explain facility on a validated
// statement. The statement goes through the sanitizer first; the explain
// prefix is added only after it is certified clean.
func (e *Engine) ExplainPlan(ctx context.Context, conn db.Conn, rawSQL string) (*db.ResultSet, error) {
	statement, err := sqlguard.Sanitize(rawSQL)
	if err != nil {
		return nil, err
	}

	plan, err := conn.QueryAll(ctx, conn.Dialect().ExplainPrefix()+statement)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "explain failed")
	}

	return plan, nil
}

// Schema returns the connection's schema, from cache when fresh
func (e *Engine) Schema(ctx context.Context, conn db.Conn) (*schema.Schema, error) {
	key := schema.Key(conn.Dialect().String(), conn.DatabaseName())

	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	introspected, err := schema.NewIntrospector(conn.Dialect()).Introspect(ctx, conn)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, introspected)
	e.logger.WithField("key", key).Debug("schema cached after introspection")

	return introspected, nil
}

// InvalidateSchema drops the cached schema for key. Callers must invoke it
// whenever the table set changes, such as after an uploaded table is created
// or dropped; a stale schema fed to the model produces SQL against tables
// that no longer exist.
func (e *Engine) InvalidateSchema(key string) {
	e.cache.Invalidate(key)
}

// CacheStats exposes the schema cache's occupancy
func (e *Engine) CacheStats() schema.CacheStats {
	return e.cache.Stats()
}

func (e *Engine) generate(ctx context.Context, conn db.Conn, question string, opts llm.Options) (*GenerateResult, error) {
	if question == "" {
		return nil, errors.New(errors.ErrTypeGeneration, "question is empty")
	}

	s, err := e.Schema(ctx, conn)
	if err != nil {
		return nil, err
	}

	instruction := prompt.Build(s, prompt.Options{MaxRows: e.executor.MaxRows()})
	fullPrompt := instruction + "\nQuestion: " + question + "\n\nSQL:"

	started := time.Now()

	raw, err := retry.DoWithResult(ctx, e.policy, func() (string, error) {
		return e.llm.Complete(ctx, fullPrompt, opts)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeGeneration, "SQL generation failed")
	}

	statement, err := sqlguard.Sanitize(raw)
	if err != nil {
		// Validation rejections are surfaced verbatim, never retried.
		return nil, err
	}

	return &GenerateResult{
		SQL:              statement,
		GenerationTimeMs: time.Since(started).Milliseconds(),
		SchemaUsed:       s.TableNames(),
	}, nil
}

func (e *Engine) execute(ctx context.Context, conn db.Conn, rawSQL string) (string, *executor.Result, error) {
	statement, err := sqlguard.Sanitize(rawSQL)
	if err != nil {
		return rawSQL, nil, err
	}

	result, err := e.executor.Execute(ctx, conn, statement)
	if err != nil {
		return statement, nil, err
	}

	return statement, result, nil
}

// record appends a history entry, logging rather than propagating failures:
// history is secondary infrastructure and must never fail a request.
func (e *Engine) record(ctx context.Context, entry history.Entry) {
	if e.recorder == nil {
		return
	}

	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.ErrorWithErr("failed to record history entry", err)
	}
}
