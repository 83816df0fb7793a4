package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/retry"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/testutil"
)

func openTestConn(t *testing.T) db.Conn {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	sqlDB.SetMaxOpenConns(1)

	_, err = sqlDB.Exec(`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	_, err = sqlDB.Exec(`INSERT INTO customers (name) VALUES ('Ada'), ('Grace'), ('Edsger')`)
	require.NoError(t, err)

	return db.NewFromSQL(sqlDB, db.DialectSQLite, "testdb")
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestEngine(service llm.Service, recorder history.Recorder) *Engine {
	return New(
		service,
		schema.NewCache(8, time.Minute),
		executor.New(1000, 5*time.Second, nil),
		recorder,
		fastPolicy(),
		nil,
	)
}

func TestQueryFromQuestion_FullPipeline(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}
	recorder := history.NewMemoryStore(10)

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("```sql\nSELECT name FROM customers ORDER BY name\n```", nil).Once()

	eng := newTestEngine(mockLLM, recorder)

	result, err := eng.QueryFromQuestion(context.Background(), conn, "list all customers", llm.Options{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM customers ORDER BY name;", result.SQL)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, []string{"name"}, result.Columns)
	assert.True(t, result.LimitApplied)

	entries, err := recorder.Query(context.Background(), history.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "list all customers", entries[0].Question)
	assert.Equal(t, 3, entries[0].RowCount)

	mockLLM.AssertExpectations(t)
}

func TestQueryFromQuestion_PromptCarriesSchema(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}

	var capturedPrompt string

	mockLLM.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		capturedPrompt = p
		return true
	}), mock.Anything).Return("SELECT name FROM customers", nil)

	eng := newTestEngine(mockLLM, history.NewMemoryStore(10))

	_, err := eng.QueryFromQuestion(context.Background(), conn, "who are the customers?", llm.Options{})
	require.NoError(t, err)

	assert.Contains(t, capturedPrompt, "Table: customers")
	assert.Contains(t, capturedPrompt, "Question: who are the customers?")
}

func TestQueryFromQuestion_LimitHoldsWithTrailingComment(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("SELECT name FROM customers -- all of them", nil).Once()

	eng := New(
		mockLLM,
		schema.NewCache(8, time.Minute),
		executor.New(2, 5*time.Second, nil),
		history.NewMemoryStore(10),
		fastPolicy(),
		nil,
	)

	result, err := eng.QueryFromQuestion(context.Background(), conn, "list all customers", llm.Options{})
	require.NoError(t, err)

	assert.True(t, result.LimitApplied)
	assert.Equal(t, 2, result.RowCount, "the row ceiling must hold when generated SQL ends in a comment")

	mockLLM.AssertExpectations(t)
}

func TestGenerate_RetriesOnRateLimit(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New(errors.ErrTypeRateLimit, "rate limited")).Once()
	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("SELECT name FROM customers", nil).Once()

	eng := newTestEngine(mockLLM, history.NewMemoryStore(10))

	result, err := eng.Generate(context.Background(), conn, "list customers", llm.Options{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM customers;", result.SQL)
	assert.Equal(t, []string{"customers"}, result.SchemaUsed)

	mockLLM.AssertExpectations(t)
	mockLLM.AssertNumberOfCalls(t, "Complete", 2)
}

func TestGenerate_DoesNotRetryGenerationErrors(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New(errors.ErrTypeGeneration, "bad request"))

	eng := newTestEngine(mockLLM, history.NewMemoryStore(10))

	_, err := eng.Generate(context.Background(), conn, "list customers", llm.Options{})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
	mockLLM.AssertNumberOfCalls(t, "Complete", 1)
}

func TestGenerate_ValidationRejectionIsNotRetried(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}
	recorder := history.NewMemoryStore(10)

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("DROP TABLE customers", nil)

	eng := newTestEngine(mockLLM, recorder)

	_, err := eng.Generate(context.Background(), conn, "delete everything", llm.Options{})
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	mockLLM.AssertNumberOfCalls(t, "Complete", 1)

	entries, queryErr := recorder.Query(context.Background(), history.Filter{}, 0)
	require.NoError(t, queryErr)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.NotEmpty(t, entries[0].Error)
}

func TestExecute_ValidatesCallerSQL(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	_, err := eng.Execute(context.Background(), conn, "UPDATE customers SET name = 'x'")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	result, err := eng.Execute(context.Background(), conn, "SELECT id, name FROM customers")
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)
	assert.True(t, result.LimitApplied)
}

func TestExecute_ExecutionFailureSurfaced(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	_, err := eng.Execute(context.Background(), conn, "SELECT missing_column FROM customers")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))
}

func TestSchema_CachedAfterFirstIntrospection(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	first, err := eng.Schema(context.Background(), conn)
	require.NoError(t, err)

	second, err := eng.Schema(context.Background(), conn)
	require.NoError(t, err)

	assert.Same(t, first, second, "second read must come from the cache")
	assert.Equal(t, 1, eng.CacheStats().Size)
}

func TestInvalidateSchema(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	first, err := eng.Schema(context.Background(), conn)
	require.NoError(t, err)

	eng.InvalidateSchema(schema.Key("sqlite", "testdb"))
	assert.Equal(t, 0, eng.CacheStats().Size)

	second, err := eng.Schema(context.Background(), conn)
	require.NoError(t, err)
	assert.NotSame(t, first, second, "invalidation must force re-introspection")
}

func TestExplainPlan(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	plan, err := eng.ExplainPlan(context.Background(), conn, "SELECT name FROM customers WHERE id = 1")
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Rows)

	_, err = eng.ExplainPlan(context.Background(), conn, "DELETE FROM customers")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestRecorderFailuresAreSwallowed(t *testing.T) {
	conn := openTestConn(t)
	mockLLM := &testutil.MockLLM{}

	mockLLM.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return("SELECT name FROM customers", nil)

	recorder := &testutil.FailingRecorder{Err: errors.New(errors.ErrTypeHistory, "disk full")}

	eng := newTestEngine(mockLLM, recorder)

	result, err := eng.QueryFromQuestion(context.Background(), conn, "list customers", llm.Options{})
	require.NoError(t, err, "history failures must not fail the request")
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, 1, recorder.Attempts)
}

func TestGenerate_EmptyQuestion(t *testing.T) {
	conn := openTestConn(t)
	eng := newTestEngine(&testutil.MockLLM{}, history.NewMemoryStore(10))

	_, err := eng.Generate(context.Background(), conn, "", llm.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGeneration))
}
