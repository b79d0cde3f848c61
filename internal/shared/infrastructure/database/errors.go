package database

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoRows is returned when a query expected to return a row returns none.
var ErrNoRows = errors.New("no rows in result set")

// ErrUnavailable indicates the backend could not be reached at all, as
// opposed to a query that ran and failed. Callers use this to fall back
// to a cached copy instead of failing the whole operation.
var ErrUnavailable = errors.New("storage unavailable")

// IsNoRows returns true if the error indicates no rows were found.
// This handles both pgx.ErrNoRows and sql.ErrNoRows.
func IsNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNoRows)
}

// IsUnavailable returns true if the error indicates the backend is
// unreachable: connection refused, broken pipe, a timed-out dial, or a
// connection-exception class PostgreSQL error.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 errors cover connection exceptions.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return errors.Is(err, sql.ErrConnDone)
}
