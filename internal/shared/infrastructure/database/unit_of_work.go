package database

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned when Commit or Rollback find no transaction.
var ErrNoTransaction = errors.New("no transaction in context")

// UnitOfWork implements application.UnitOfWork over any Connection.
// Nested Begin calls join the outer transaction without owning it.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work bound to conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction, or joins the one already in ctx.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := TxInfoFromContext(ctx); ok {
		return WithTx(ctx, info.Tx, false), nil
	}

	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return WithTx(ctx, tx, true), nil
}

// Commit commits when this scope owns the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Commit(ctx)
}

// Rollback rolls back when this scope owns the transaction.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Rollback(ctx)
}
