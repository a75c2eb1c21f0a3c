package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/syssam/ospace/dialect"
)

// TestOpenDB tests the OpenDB function with different dialects.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		dialect string
	}{
		{"Postgres", dialect.Postgres, dialect.Postgres},
		{"MySQL", dialect.MySQL, dialect.MySQL},
		{"SQLite", dialect.SQLite, dialect.SQLite},
		{"SQLite3", "sqlite3", dialect.SQLite},
		{"Unknown", "oracle", "oracle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.driver, db)
			assert.NotNil(t, drv)
			assert.Same(t, db, drv.DB())
			assert.Equal(t, tt.dialect, drv.Dialect())
		})
	}
}

// TestDriverQuery tests query operations.
func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("simple_query", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name FROM customers").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(1, "Ada").
				AddRow(2, "Grace"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT id, name FROM customers", []any{}, rows)
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_with_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT name FROM customers WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ada"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT name FROM customers WHERE id = $1", []any{1}, rows)
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		expectedErr := errors.New("database error")
		mock.ExpectQuery("SELECT").WillReturnError(expectedErr)

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT", []any{}, rows)
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		err := drv.Query(context.Background(), "SELECT 1", []any{}, nil)
		assert.Error(t, err)
		err = drv.Query(context.Background(), "SELECT 1", "1", &Rows{})
		assert.Error(t, err)
	})
}

// TestDriverExec tests execute operations.
func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("simple_exec", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO customers").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := drv.Exec(context.Background(), "INSERT INTO customers (name) VALUES ('Ada')", []any{}, nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_with_result", func(t *testing.T) {
		mock.ExpectExec("UPDATE customers SET name = \\$1 WHERE id = \\$2").
			WithArgs("Ada", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		var res Result
		err := drv.Exec(context.Background(), "UPDATE customers SET name = $1 WHERE id = $2", []any{"Ada", 1}, &res)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		expectedErr := errors.New("constraint violation")
		mock.ExpectExec("DELETE").WillReturnError(expectedErr)

		err := drv.Exec(context.Background(), "DELETE FROM customers", []any{}, nil)
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_destination", func(t *testing.T) {
		err := drv.Exec(context.Background(), "DELETE FROM customers", []any{}, &Rows{})
		assert.Error(t, err)
	})
}

// TestDriverTransaction tests transaction operations.
func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("successful_commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO customers").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)

		err = tx.Exec(context.Background(), "INSERT INTO customers (name) VALUES ('Ada')", []any{}, nil)
		require.NoError(t, err)

		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO customers").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)

		err = tx.Exec(context.Background(), "INSERT INTO customers (name) VALUES ('Ada')", []any{}, nil)
		require.Error(t, err)

		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_in_transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)

		rows := &Rows{}
		err = tx.Query(context.Background(), "SELECT id FROM customers", []any{}, rows)
		require.NoError(t, err)

		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin_error", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("busy"))
		_, err := drv.Tx(context.Background())
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestContextCancellation tests that context cancellation is respected.
func TestContextCancellation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock.ExpectQuery("SELECT").WillReturnError(context.Canceled)
	rows := &Rows{}
	err = drv.Query(ctx, "SELECT 1", []any{}, rows)
	assert.Error(t, err)
}

// TestScanRecords tests scanning rows into records.
func TestScanRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("records", func(t *testing.T) {
		mock.ExpectQuery("SELECT").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code"}).
				AddRow(int64(1), "Ada", []byte("A1")).
				AddRow(int64(2), nil, nil))

		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT id, name, code FROM suppliers", []any{}, rows))
		records, err := ScanRecords(rows)
		require.NoError(t, err)
		require.NoError(t, rows.Close())

		require.Len(t, records, 2)
		assert.Equal(t, Record{"id": int64(1), "name": "Ada", "code": []byte("A1")}, records[0])
		assert.Equal(t, Record{"id": int64(2), "name": nil, "code": nil}, records[1])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no_rows", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT id FROM suppliers", []any{}, rows))
		records, err := ScanRecords(rows)
		require.NoError(t, err)
		require.NoError(t, rows.Close())
		assert.Empty(t, records)
	})

	t.Run("row_error", func(t *testing.T) {
		rowErr := errors.New("broken row")
		mock.ExpectQuery("SELECT").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).
				AddRow(int64(1)).
				AddRow(int64(2)).
				RowError(1, rowErr))

		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT id FROM suppliers", []any{}, rows))
		_, err := ScanRecords(rows)
		assert.ErrorIs(t, err, rowErr)
	})
}

// TestStatsDriver tests statement counting.
func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowThreshold(time.Hour),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	assert.Equal(t, time.Hour, drv.SlowThreshold())

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE").WillReturnError(errors.New("locked"))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM customers", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, drv.Exec(context.Background(), "INSERT INTO customers DEFAULT VALUES", []any{}, nil))
	require.Error(t, drv.Exec(context.Background(), "DELETE FROM customers", []any{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())

	stats := drv.QueryStats().Stats()
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.EqualValues(t, 2, stats.TotalExecs)
	assert.EqualValues(t, 1, stats.Errors)
	assert.Zero(t, stats.SlowQueries)
	assert.Empty(t, slow)

	t.Run("slow_queries", func(t *testing.T) {
		drv.SetSlowThreshold(-1)
		mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT id FROM orders", []any{}, rows))
		require.NoError(t, rows.Close())
		assert.EqualValues(t, 1, drv.QueryStats().Stats().SlowQueries)
		assert.Equal(t, []string{"SELECT id FROM orders"}, slow)
	})

	t.Run("transactions", func(t *testing.T) {
		drv.QueryStats().Reset()
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "UPDATE customers SET name = 'Ada'", []any{}, nil))
		require.NoError(t, tx.Commit())
		assert.EqualValues(t, 1, drv.QueryStats().Stats().TotalExecs)
		assert.Zero(t, drv.QueryStats().Stats().TotalQueries)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestDebugDriver tests statement logging.
func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	drv := NewDebugDriver(OpenDB(dialect.SQLite, db), WithDebugLogger(zap.New(core)))

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM customers WHERE id = ?", []any{1}, rows))
	require.NoError(t, rows.Close())
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "DELETE FROM customers", []any{}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	var messages []string
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	assert.Equal(t, []string{"query", "begin transaction", "tx exec", "rollback transaction"}, messages)
	first := logs.All()[0].ContextMap()
	assert.Equal(t, "SELECT id FROM customers WHERE id = ?", first["query"])
	assert.Equal(t, dialect.SQLite, first["dialect"])
}

// BenchmarkDriver benchmarks driver operations.
func BenchmarkDriver(b *testing.B) {
	db, mock, err := sqlmock.New()
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	b.Run("Query_Simple", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			rows := &Rows{}
			_ = drv.Query(context.Background(), "SELECT 1", []any{}, rows)
			rows.Close()
		}
	})

	b.Run("Exec_Simple", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
			_ = drv.Exec(context.Background(), "INSERT INTO t VALUES (1)", []any{}, nil)
		}
	})
}
