package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
)

const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

func init() {
	database.RegisterDriver(database.DriverSQLite, NewConnection)
}

// Connection adapts *sql.DB to database.Connection.
// It holds a single open connection, so write transactions are serialized.
type Connection struct {
	db *sql.DB
}

// NewConnection opens the SQLite file at cfg.SQLitePath (or the default path).
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	path := cfg.SQLitePath
	if path == "" && cfg.URL != "" {
		path = database.SQLitePathFromURL(cfg.URL)
	}
	if path == "" {
		path = database.DefaultSQLitePath()
	}

	if err := database.EnsureDirectory(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &Connection{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Driver() database.Driver        { return database.DriverSQLite }
func (c *Connection) Close() error                   { return c.db.Close() }
func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx}, nil
}

func (c *Connection) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *Connection) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Connection) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.WrapSQLRows(rows), nil
}

// Transaction adapts *sql.Tx to database.Transaction.
type Transaction struct {
	tx *sql.Tx
}

func (t *Transaction) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *Transaction) Rollback(ctx context.Context) error { return t.tx.Rollback() }

func (t *Transaction) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Transaction) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *Transaction) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.WrapSQLRows(rows), nil
}
