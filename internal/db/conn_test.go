package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConn(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewFromSQL(sqlDB, DialectSQLite, "testdb"), mock
}

func TestDB_QueryAll(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery("SELECT name, price FROM products").WillReturnRows(
		sqlmock.NewRows([]string{"name", "price"}).
			AddRow("Chai", 18.0).
			AddRow("Chang", 19.0),
	)

	result, err := conn.QueryAll(context.Background(), "SELECT name, price FROM products")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "price"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Chai", result.Rows[0][0])
	assert.Equal(t, 19.0, result.Rows[1][1])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_QueryAll_ByteSlicesBecomeStrings(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery("SELECT name FROM customers").WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow([]byte("Alfreds Futterkiste")),
	)

	result, err := conn.QueryAll(context.Background(), "SELECT name FROM customers")
	require.NoError(t, err)
	assert.Equal(t, "Alfreds Futterkiste", result.Rows[0][0])
}

func TestDB_QueryOne(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(
		sqlmock.NewRows([]string{"n"}).AddRow(int64(42)),
	)

	row, found, err := conn.QueryOne(context.Background(), "SELECT COUNT(*) AS n FROM orders")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), row["n"])
}

func TestDB_QueryOne_Absent(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"id"}),
	)

	row, found, err := conn.QueryOne(context.Background(), "SELECT id FROM orders WHERE id = -1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, row)
}

func TestDB_QueryAll_Error(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectQuery("SELECT bogus").WillReturnError(errors.New("no such column: bogus"))

	_, err := conn.QueryAll(context.Background(), "SELECT bogus FROM products")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")
}

func TestDB_HealthCheck(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectPing()

	health := conn.HealthCheck(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, "sqlite", health.Dialect)
	assert.Empty(t, health.Error)
}

func TestDB_Accessors(t *testing.T) {
	conn, _ := newMockConn(t)

	assert.Equal(t, DialectSQLite, conn.Dialect())
	assert.Equal(t, "testdb", conn.DatabaseName())
}
