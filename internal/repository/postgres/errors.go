package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes the repositories react to.
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	return pqErr, true
}

func hasCode(err error, code, constraint string) bool {
	pqErr, ok := pqError(err)
	if !ok || string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsUniqueViolation reports whether err is a unique violation on constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pqUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation on
// constraint, or on any constraint when it is empty.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pqForeignKeyViolation, constraint)
}

// isRetryable reports whether the server aborted the transaction on a
// conflict that rerunning it may resolve.
func isRetryable(err error) bool {
	pqErr, ok := pqError(err)
	if !ok {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}
