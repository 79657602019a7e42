package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor is what repositories run queries on: the pool, or the transaction a service passes down.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// Transactor runs units of work atomically.
	Transactor interface {
		// InTx runs fn inside a transaction: committed when fn returns nil, rolled back otherwise.
		// Transient conflicts (serialization failures, deadlocks, ErrTxConflict) re-run fn from scratch,
		// so fn must not keep state across calls.
		InTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

// DBOrdering is one ORDER BY term. The zero value sorts descending.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	if ord.Ascending {
		return ord.Field + " ASC"
	}
	return ord.Field + " DESC"
}
