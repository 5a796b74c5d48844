// Package admin is the authoring and back-office surface: creating
// sessions and listing reservations for review.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/service/query"
	"github.com/kirinyoku/oneday/internal/uow"
)

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	notifier *events.Notifier
	clock    clock.Clock
}

func New(store repository.Store, notifier *events.Notifier, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		clock:    clk,
	}
}

type SessionInput struct {
	Title      string
	StartsAt   time.Time
	Capacity   int
	PriceCents int
}

// CreateSession creates a session record with no seat taken.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: title, start time, seat capacity and price.
//
// Returns:
//   - *domain.Session: the created session.
//   - error: admin.ErrInvalidSession if the input is rejected.
func (s *Service) CreateSession(ctx context.Context, in SessionInput) (*domain.Session, error) {
	const op = "service.admin.CreateSession"

	switch {
	case strings.TrimSpace(in.Title) == "":
		return nil, fmt.Errorf("%s: %w: title is required", op, ErrInvalidSession)
	case in.StartsAt.IsZero():
		return nil, fmt.Errorf("%s: %w: start time is required", op, ErrInvalidSession)
	case in.Capacity < 0:
		return nil, fmt.Errorf("%s: %w: capacity must not be negative", op, ErrInvalidSession)
	case in.PriceCents < 0:
		return nil, fmt.Errorf("%s: %w: price must not be negative", op, ErrInvalidSession)
	}

	now := s.clock.Now()
	sess := &domain.Session{
		Title:      strings.TrimSpace(in.Title),
		StartsAt:   in.StartsAt.UTC(),
		Capacity:   in.Capacity,
		PriceCents: in.PriceCents,
		CreatedAt:  now,
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		id, err := tx.Sessions().Create(ctx, sess)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrInvalidSession)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		sess.ID = id

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, events.Event{Type: events.SessionCreated, SessionID: id, At: now})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// ListByStatus returns reservations newest first. "ALL" or "" lists
// every status.
func (s *Service) ListByStatus(ctx context.Context, status string) ([]domain.Reservation, error) {
	const op = "service.admin.ListByStatus"

	st, err := query.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	list, err := s.store.Reservations().ListByStatus(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return list, nil
}

// CancelRequests lists the reservations waiting for a cancellation decision.
func (s *Service) CancelRequests(ctx context.Context) ([]domain.Reservation, error) {
	return s.ListByStatus(ctx, string(domain.StatusCancelRequested))
}
