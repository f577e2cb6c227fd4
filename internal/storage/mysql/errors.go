package mysql

import (
	"syscall"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"
)

// Server error numbers the provisioner gives hints for.
const (
	ErrNumAccessDenied    uint16 = 1045 // ER_ACCESS_DENIED_ERROR
	ErrNumUnknownDatabase uint16 = 1049 // ER_BAD_DB_ERROR
)

// Failure is a recognised class of connection or execution error.
type Failure string

const (
	FailureUnknown           Failure = ""
	FailureConnectionRefused Failure = "connection_refused"
	FailureUnknownDatabase   Failure = "unknown_database"
	FailureAccessDenied      Failure = "access_denied"
)

// Classify inspects the error chain and reports which failure it is.
func Classify(err error) Failure {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return FailureConnectionRefused
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case ErrNumUnknownDatabase:
			return FailureUnknownDatabase
		case ErrNumAccessDenied:
			return FailureAccessDenied
		}
	}
	return FailureUnknown
}
