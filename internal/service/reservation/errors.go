package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

var (
	// ErrConflict means the session had no seat left.
	ErrConflict                   = errors.New("no seats left for session")
	ErrInvalidState               = errors.New("invalid reservation state")
	ErrNotFound                   = errors.New("not found")
	ErrDuplicateActiveReservation = errors.New("user already has an active reservation for this session")
	ErrLockTimeout                = errors.New("lock wait timeout")
	ErrRateLimited                = errors.New("too many hold requests")
	ErrInvalidInput               = errors.New("invalid input")

	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)

	ErrSessionStarted = fmt.Errorf("session already started: %w", ErrInvalidState)
	ErrHoldExpired    = fmt.Errorf("hold expired: %w", ErrInvalidState)
)

// InvalidStateError reports an operation attempted from a status that
// does not allow it. It matches ErrInvalidState.
type InvalidStateError struct {
	Op   string
	From domain.ReservationStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s reservation in status %s", e.Op, e.From)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// RateLimitedError carries how long the caller should wait. It matches
// ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many hold requests, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsTransient reports whether err is an infrastructure failure the caller
// may retry unchanged.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockTimeout) || repository.IsTransient(err)
}

func invalidState(err error) error {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return &InvalidStateError{Op: te.Action, From: te.From}
	}
	return err
}

func storeErr(err error) error {
	if errors.Is(err, repository.ErrLockTimeout) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
