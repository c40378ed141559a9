package migration

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the migrator reacts to
const (
	codeUndefinedTable  = "42P01"
	codeLockNotAvail    = "55P03"
	codeUniqueViolation = "23505"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUndefinedTable reports whether err means the migration store schema is
// missing
func isUndefinedTable(err error) bool {
	return pgErrorCode(err) == codeUndefinedTable
}

// isLockTimeout reports whether err is a bounded advisory-lock wait expiry
func isLockTimeout(err error) bool {
	return pgErrorCode(err) == codeLockNotAvail
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == codeUniqueViolation
}
