package executor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/errors"
)

func newMockConn(t *testing.T) (db.Conn, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db.NewFromSQL(sqlDB, db.DialectSQLite, "test"), mock
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		name        string
		statement   string
		maxRows     int
		want        string
		wantApplied bool
	}{
		{
			name:        "no limit gets one before the terminator",
			statement:   "SELECT ProductName FROM Products ORDER BY UnitPrice DESC;",
			maxRows:     1000,
			want:        "SELECT ProductName FROM Products ORDER BY UnitPrice DESC LIMIT 1000;",
			wantApplied: true,
		},
		{
			name:        "no terminator",
			statement:   "SELECT id FROM orders",
			maxRows:     50,
			want:        "SELECT id FROM orders LIMIT 50",
			wantApplied: true,
		},
		{
			name:        "existing limit is untouched",
			statement:   "SELECT id FROM orders LIMIT 10;",
			maxRows:     1000,
			want:        "SELECT id FROM orders LIMIT 10;",
			wantApplied: false,
		},
		{
			name:        "existing limit larger than the ceiling is never shrunk",
			statement:   "SELECT id FROM orders LIMIT 5000;",
			maxRows:     1000,
			want:        "SELECT id FROM orders LIMIT 5000;",
			wantApplied: false,
		},
		{
			name:        "lowercase limit detected",
			statement:   "select id from orders limit 5",
			maxRows:     1000,
			want:        "select id from orders limit 5",
			wantApplied: false,
		},
		{
			name:        "trailing line comment cannot swallow the limit",
			statement:   "SELECT name FROM customers -- all of them\n;",
			maxRows:     1000,
			want:        "SELECT name FROM customers -- all of them\nLIMIT 1000;",
			wantApplied: true,
		},
		{
			name:        "trailing line comment without terminator",
			statement:   "SELECT name FROM customers -- all of them",
			maxRows:     50,
			want:        "SELECT name FROM customers -- all of them\nLIMIT 50",
			wantApplied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := ApplyRowLimit(tt.statement, tt.maxRows)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantApplied, applied)
		})
	}
}

func TestExecute_AppendsLimit(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery(`SELECT ProductName FROM Products ORDER BY UnitPrice DESC LIMIT 1000;`).
		WillReturnRows(sqlmock.NewRows([]string{"ProductName"}).
			AddRow("Chai").
			AddRow("Chang"))

	exec := New(1000, time.Second, nil)

	result, err := exec.Execute(context.Background(),
		conn, "SELECT ProductName FROM Products ORDER BY UnitPrice DESC;")
	require.NoError(t, err)

	assert.True(t, result.LimitApplied)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"ProductName"}, result.Columns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_LimitHoldsWithTrailingComment(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE customers (name TEXT)`)
	require.NoError(t, err)

	_, err = sqlDB.Exec(`INSERT INTO customers (name) VALUES ('Ada'), ('Grace'), ('Edsger')`)
	require.NoError(t, err)

	conn := db.NewFromSQL(sqlDB, db.DialectSQLite, "test")
	exec := New(1, time.Second, nil)

	result, err := exec.Execute(context.Background(),
		conn, "SELECT name FROM customers -- all of them\n;")
	require.NoError(t, err)

	assert.True(t, result.LimitApplied)
	assert.Equal(t, 1, result.RowCount, "the row ceiling must hold when the statement ends in a comment")
}

func TestExecute_KeepsExistingLimit(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery(`SELECT id FROM orders LIMIT 5;`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	exec := New(1000, time.Second, nil)

	result, err := exec.Execute(context.Background(), conn, "SELECT id FROM orders LIMIT 5;")
	require.NoError(t, err)

	assert.False(t, result.LimitApplied)
	assert.Equal(t, 1, result.RowCount)
}

func TestExecute_Timeout(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery(`SELECT id FROM orders`).
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	exec := New(1000, 50*time.Millisecond, nil)

	result, err := exec.Execute(context.Background(), conn, "SELECT id FROM orders;")
	require.Error(t, err)

	assert.Nil(t, result, "no partial rows after a timeout")
	assert.True(t, errors.IsType(err, errors.ErrTypeTimeout),
		"timeout must be distinguishable from a generic execution error")
}

func TestExecute_ExecutionFailure(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery(`SELECT nope FROM orders`).
		WillReturnError(assert.AnError)

	exec := New(1000, time.Second, nil)

	_, err := exec.Execute(context.Background(), conn, "SELECT nope FROM orders;")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))
	assert.False(t, errors.IsType(err, errors.ErrTypeTimeout))
}

func TestExecute_CanceledContext(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery(`SELECT id FROM orders`).
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	exec := New(1000, time.Second, nil)

	_, err := exec.Execute(ctx, conn, "SELECT id FROM orders;")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))
}

func TestNew_Defaults(t *testing.T) {
	exec := New(0, 0, nil)
	assert.Equal(t, DefaultMaxRows, exec.MaxRows())
	assert.Equal(t, DefaultTimeout, exec.timeout)
}
