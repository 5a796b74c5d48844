package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrLockTimeout is returned when a row lock could not be acquired within
	// the store's lock-wait budget. It is transient; callers may retry.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrRetryable marks deadlocks and serialization failures.
	ErrRetryable = errors.New("transaction must be retried")
)

// IsTransient reports whether err is an infrastructure failure that a caller
// may retry as-is.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrRetryable)
}
