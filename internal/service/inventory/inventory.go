// Package inventory owns the seat counter of a session. Every mutation
// happens on a session row locked by the caller's transaction, so
// concurrent holds on one session are serialized by the store.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

var (
	ErrSessionFull     = errors.New("session is full")
	ErrSessionNotFound = errors.New("session not found")
)

// Lock takes the exclusive lock on the session row and returns it.
func Lock(ctx context.Context, sessions repository.SessionRepo, sessionID int64) (*domain.Session, error) {
	const op = "inventory.Lock"

	s, err := sessions.GetForUpdate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}

// TryReserveSeat locks the session and takes one seat.
//
// Returns:
//   - *domain.Session: the session with its updated counter.
//   - error: inventory.ErrSessionFull if no seat is left.
//   - error: inventory.ErrSessionNotFound if the session does not exist.
func TryReserveSeat(ctx context.Context, sessions repository.SessionRepo, sessionID int64) (*domain.Session, error) {
	s, err := Lock(ctx, sessions, sessionID)
	if err != nil {
		return nil, err
	}

	if err := Reserve(ctx, sessions, s); err != nil {
		return nil, err
	}

	return s, nil
}

// ReleaseSeat locks the session and gives one seat back.
func ReleaseSeat(ctx context.Context, sessions repository.SessionRepo, sessionID int64) (*domain.Session, error) {
	s, err := Lock(ctx, sessions, sessionID)
	if err != nil {
		return nil, err
	}

	if err := Release(ctx, sessions, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Reserve increments the counter of s, which must already be locked by
// the transaction that owns sessions.
func Reserve(ctx context.Context, sessions repository.SessionRepo, s *domain.Session) error {
	const op = "inventory.Reserve"

	if s.Reserved >= s.Capacity {
		return fmt.Errorf("%s:%w", op, ErrSessionFull)
	}

	if err := sessions.SetReserved(ctx, s.ID, s.Reserved+1); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s:%w", op, ErrSessionFull)
		}
		return fmt.Errorf("%s:%w", op, err)
	}
	s.Reserved++

	return nil
}

// Release decrements the counter of a locked session, never below zero.
func Release(ctx context.Context, sessions repository.SessionRepo, s *domain.Session) error {
	const op = "inventory.Release"

	if s.Reserved <= 0 {
		return nil
	}

	if err := sessions.SetReserved(ctx, s.ID, s.Reserved-1); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	s.Reserved--

	return nil
}
