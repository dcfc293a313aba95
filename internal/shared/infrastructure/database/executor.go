package database

import (
	"context"
	"database/sql"
)

// Row is satisfied by pgx.Row and *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the iteration subset shared by pgx.Rows and *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result reports the effect of an Exec.
type Result interface {
	RowsAffected() (int64, error)
}

// Executor runs statements against a connection or a transaction.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that can be finished.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle able to start transactions.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

type sqlRows struct {
	*sql.Rows
}

// WrapSQLRows adapts *sql.Rows to Rows.
func WrapSQLRows(r *sql.Rows) Rows {
	return sqlRows{Rows: r}
}
