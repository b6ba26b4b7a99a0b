// Package store implements the durable persistence layer on PostgreSQL.
// All queries are hand-written SQL over database/sql with the pgx driver.
// Single-statement conditional updates carry the atomicity requirements:
// token redemption, OAuth state consumption, and guarded party status
// transitions never read-then-write.
package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("already exists")
)

// Store runs all SQL against a shared connection pool.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the pool for callers that need health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullString maps "" to SQL NULL for optional text columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
