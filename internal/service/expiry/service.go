// Package expiry reclaims the seats of holds that were never paid for.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/service/inventory"
	"github.com/kirinyoku/oneday/internal/uow"
)

type Config struct {
	// BatchSize caps the rows handled per sweep; zero means no cap.
	BatchSize int
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	notifier *events.Notifier
	clock    clock.Clock
	log      *slog.Logger
	cfg      Config
}

func New(
	store repository.Store,
	notifier *events.Notifier,
	clk clock.Clock,
	log *slog.Logger,
	cfg Config,
) *Service {
	if clk == nil {
		clk = clock.System{}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		clock:    clk,
		log:      log,
		cfg:      cfg,
	}
}

// Sweep expires every HOLD whose deadline is before now and releases its
// seat. Each hold is handled in its own transaction; a failure is logged
// and the sweep moves on. It returns how many holds were expired.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	const op = "service.expiry.Sweep"

	start := time.Now()
	now := s.clock.Now()

	due, err := s.store.Reservations().ListExpiredHolds(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var expired, failed int
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}

		ok, err := s.expire(ctx, r.ID, r.SessionID, now)
		if err != nil {
			failed++
			s.log.Warn("hold expiry failed",
				slog.Int64("reservation_id", r.ID),
				slog.Int64("session_id", r.SessionID),
				slog.Any("err", err))
			continue
		}
		if ok {
			expired++
		}
	}

	s.log.Info("hold expiry sweep",
		slog.Int("count", expired),
		slog.Int("failed", failed),
		slog.Int("scanned", len(due)),
		slog.Duration("took", time.Since(start)))

	return expired, nil
}

// expire re-checks the hold under its locks. It reports false when the
// hold was paid or canceled after the scan.
func (s *Service) expire(ctx context.Context, reservationID, sessionID int64, now time.Time) (bool, error) {
	const op = "service.expiry.expire"

	var done bool

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		sess, err := inventory.Lock(ctx, tx.Sessions(), sessionID)
		if err != nil {
			return err
		}

		r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		if !r.HoldExpired(now) {
			return nil
		}

		if err := r.Expire(now); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		if err := inventory.Release(ctx, tx.Sessions(), sess); err != nil {
			return err
		}
		done = true

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, events.ForReservation(events.Expired, r, now))
		})

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	return done, nil
}
