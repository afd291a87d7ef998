package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes this package cares about.
const (
	codeUniqueViolation  = "23505"
	codeForeignKey       = "23503"
	codeLockNotAvailable = "55P03"
	codeQueryCanceled    = "57014"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsLockNotAvailable reports a failed FOR UPDATE NOWAIT acquisition.
func IsLockNotAvailable(err error) bool {
	return pgErrCode(err) == codeLockNotAvailable
}

// IsUniqueViolation reports a unique constraint conflict.
func IsUniqueViolation(err error) bool {
	return pgErrCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports a missing referenced row.
func IsForeignKeyViolation(err error) bool {
	return pgErrCode(err) == codeForeignKey
}

// IsQueryCanceled reports a statement_timeout expiry.
func IsQueryCanceled(err error) bool {
	return pgErrCode(err) == codeQueryCanceled
}
