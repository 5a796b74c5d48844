// Package completion finalizes paid reservations of sessions that have
// started and grants one reward coupon per completed reservation.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/service/coupon"
	"github.com/kirinyoku/oneday/internal/uow"
)

type Config struct {
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

// Sweep completes every PAID reservation whose session has started and
// returns how many it completed. The active reward template is read once
// per run; with none active, reservations complete without a coupon.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	const op = "service.completion.Sweep"

	start := time.Now()
	now := s.clock.Now()

	due, err := s.store.Reservations().ListPaidStarted(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	tpl, err := coupon.ActiveTemplate(ctx, s.store.Coupons())
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var completed, issued, failed int
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}

		ok, granted, err := s.complete(ctx, r.ID, tpl, now)
		if err != nil {
			failed++
			s.log.Warn("reservation completion failed",
				slog.Int64("reservation_id", r.ID),
				slog.Any("err", err))
			continue
		}
		if ok {
			completed++
		}
		if granted {
			issued++
		}
	}

	s.log.Info("completion sweep",
		slog.Int("count", completed),
		slog.Int("coupons", issued),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(start)))

	return completed, nil
}

// complete finalizes one reservation under its row lock. It reports false
// when the row left PAID after the scan.
func (s *Service) complete(
	ctx context.Context,
	reservationID int64,
	tpl *domain.CouponTemplate,
	now time.Time,
) (done, granted bool, err error) {
	const op = "service.completion.complete"

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		if r.Status != domain.StatusPaid {
			return nil
		}

		if err := r.Complete(now); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}

		evs := []events.Event{events.ForReservation(events.Completed, r, now)}

		if tpl != nil {
			c, created, err := coupon.Issue(ctx, tx.Coupons(), r.UserID, tpl, &r.ID, now)
			if err != nil {
				return err
			}
			if created {
				ev := events.ForReservation(events.CouponIssued, r, now)
				ev.CouponID = c.ID
				evs = append(evs, ev)
			}
			granted = created
		}
		done = true

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, evs...)
		})

		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("%s:%w", op, err)
	}

	return done, granted, nil
}
