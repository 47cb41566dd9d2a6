// Package pgerror maps low level postgres errors to the violated
// constraint name, so repositories can translate them into domain
// errors without matching on SQLSTATE codes themselves.
package pgerror

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// integrity constraint violation class.
var constraintCodes = map[string]struct{}{
	"23505": {}, // unique_violation
	"23503": {}, // foreign_key_violation
	"23514": {}, // check_violation
	"23502": {}, // not_null_violation
}

func GetConstraintName(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if _, ok := constraintCodes[pgErr.Code]; !ok {
		return "", false
	}
	if pgErr.ConstraintName == "" {
		return "", false
	}
	return pgErr.ConstraintName, true
}
