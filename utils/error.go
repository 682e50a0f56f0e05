package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Error taxonomy for the command layer. Commands wrap these with %w so
// handlers can map them onto HTTP statuses without string matching.
var (
	// ErrNotFound: referenced entity id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput: missing required field, non-positive quantity,
	// duplicate login, illegal status transition.
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable: an underlying collaborator (database, redis,
	// blob store, notification endpoint) failed. Never retried here.
	ErrServiceUnavailable = errors.New("service unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsDuplicateKeyErr reports MySQL error 1062. Unique checks run before the
// insert, but concurrent requests can still race past them; the index is the
// backstop.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
