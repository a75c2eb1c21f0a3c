package dialect

import "context"

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two query methods of a driver. args is a []any and v
// is the destination: *sql.Result for Exec, *sql.Rows for Query.
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface a database driver implements.
type Driver interface {
	ExecQuerier
	// Tx starts a transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a driver bound to one transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
