package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common database errors
var (
	ErrNotFound = errors.New("record not found")
)

// SQLSTATE class 23 covers integrity constraint violations.
const integrityViolationClass = "23"

// IsConstraintViolation reports whether err is a Postgres integrity constraint
// violation (unique, not-null, check, foreign key).
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return len(pgErr.Code) == 5 && pgErr.Code[:2] == integrityViolationClass
}
