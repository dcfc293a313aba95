package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoRows is returned when a query expected to return a row returns none.
var ErrNoRows = errors.New("no rows in result set")

const (
	pgUniqueViolation    = "23505"
	sqliteConstraintUniq = 2067
	sqliteConstraintPKey = 1555
)

// IsNoRows reports whether err means an empty result for either driver.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNoRows)
}

type codedError interface {
	Code() int
}

// IsUniqueViolation reports whether err is a unique or primary key conflict.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var coded codedError
	if errors.As(err, &coded) {
		return coded.Code() == sqliteConstraintUniq || coded.Code() == sqliteConstraintPKey
	}
	return false
}
