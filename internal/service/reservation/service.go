// Package reservation runs the reservation state machine: holds, payment,
// cancellation requests and the admin decision on them.
//
// Every write locks the session row before the reservation row.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/repository"
	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
	"github.com/kirinyoku/oneday/internal/service/inventory"
	"github.com/kirinyoku/oneday/internal/uow"
)

type Config struct {
	DefaultHoldTTL time.Duration
	MinHoldTTL     time.Duration
	MaxHoldTTL     time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, id string) (redisrepo.Decision, error)
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	notifier *events.Notifier
	limiter  Limiter
	clock    clock.Clock
	cfg      Config
}

// New builds the service. limiter may be nil to disable rate limiting.
func New(
	store repository.Store,
	notifier *events.Notifier,
	limiter Limiter,
	clk clock.Clock,
	cfg Config,
) *Service {
	if cfg.MinHoldTTL <= 0 {
		cfg.MinHoldTTL = time.Minute
	}

	if cfg.MaxHoldTTL <= 0 || cfg.MaxHoldTTL < cfg.MinHoldTTL {
		cfg.MaxHoldTTL = 30 * time.Minute
	}

	if cfg.DefaultHoldTTL <= 0 {
		cfg.DefaultHoldTTL = 10 * time.Minute
	}

	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		limiter:  limiter,
		clock:    clk,
		cfg:      cfg,
	}
}

// CreateHold takes one seat of the session for the user and records a
// HOLD that lapses after ttl.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: session to book.
//   - userID: booking user.
//   - ttl: requested hold duration; zero means the default, other values
//     are clamped to the configured bounds.
//
// Returns:
//   - *domain.Reservation: the new HOLD.
//   - error: reservation.ErrConflict if the session is full.
//   - error: reservation.ErrDuplicateActiveReservation if the user already
//     holds, paid or asked to cancel a seat of this session.
//   - error: reservation.ErrSessionStarted if the session has started.
//   - error: reservation.ErrSessionNotFound if the session does not exist.
//   - error: reservation.ErrRateLimited if the user exceeded the hold rate.
func (s *Service) CreateHold(
	ctx context.Context,
	sessionID, userID int64,
	ttl time.Duration,
) (*domain.Reservation, error) {
	const op = "service.reservation.CreateHold"

	if sessionID <= 0 || userID <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidInput)
	}

	ttl = s.clampTTL(ttl)

	if err := s.allow(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var res *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		now := s.clock.Now()

		sess, err := inventory.Lock(ctx, tx.Sessions(), sessionID)
		if err != nil {
			return err
		}

		if sess.HasStarted(now) {
			return ErrSessionStarted
		}

		active, err := tx.Reservations().FindActiveForUpdate(ctx, sessionID, userID)
		if err != nil {
			return err
		}

		var evs []events.Event
		for i := range active {
			stale := &active[i]
			if !stale.HoldExpired(now) {
				return ErrDuplicateActiveReservation
			}

			// the sweeper has not reached this hold yet
			if err := stale.Expire(now); err != nil {
				return err
			}
			if err := tx.Reservations().Update(ctx, stale); err != nil {
				return err
			}
			if err := inventory.Release(ctx, tx.Sessions(), sess); err != nil {
				return err
			}
			evs = append(evs, events.ForReservation(events.Expired, stale, now))
		}

		if err := inventory.Reserve(ctx, tx.Sessions(), sess); err != nil {
			return err
		}

		deadline := now.Add(ttl)
		r := &domain.Reservation{
			SessionID:     sessionID,
			UserID:        userID,
			Status:        domain.StatusHold,
			HoldExpiresAt: &deadline,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		id, err := tx.Reservations().Create(ctx, r)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateActiveReservation
			}
			return err
		}
		r.ID = id
		res = r

		evs = append(evs, events.ForReservation(events.HoldCreated, r, now))
		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, evs...)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.mapErr(err))
	}

	return res, nil
}

// ConfirmPayment moves a HOLD to PAID. The seat count is untouched.
//
// Returns:
//   - error: reservation.ErrHoldExpired if the deadline has already passed.
//   - error: reservation.ErrInvalidState if the reservation is not a HOLD.
//   - error: reservation.ErrReservationNotFound if it does not exist.
func (s *Service) ConfirmPayment(
	ctx context.Context,
	reservationID int64,
	paymentRef string,
) (*domain.Reservation, error) {
	const op = "service.reservation.ConfirmPayment"

	var res *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if r.HoldExpired(now) {
			return ErrHoldExpired
		}

		if err := r.MarkPaid(now, paymentRef); err != nil {
			return err
		}

		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		res = r

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, events.ForReservation(events.Paid, r, now))
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.mapErr(err))
	}

	return res, nil
}

// RequestCancellation is the user's cancel. A PAID reservation waits for
// an admin decision in CANCEL_REQUESTED; an unpaid HOLD is canceled at
// once and its seat released.
//
// Returns:
//   - error: reservation.ErrReservationNotFound if it does not exist or is
//     owned by another user.
//   - error: reservation.ErrInvalidState unless it is a HOLD or PAID.
func (s *Service) RequestCancellation(
	ctx context.Context,
	reservationID, userID int64,
	reason string,
) (*domain.Reservation, error) {
	const op = "service.reservation.RequestCancellation"

	var res *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		sess, r, err := s.lockBoth(ctx, tx, reservationID)
		if err != nil {
			return err
		}

		if r.UserID != userID {
			return ErrReservationNotFound
		}

		now := s.clock.Now()
		wasHold := r.Status == domain.StatusHold

		if err := r.RequestCancel(now, reason); err != nil {
			return err
		}

		evs := []events.Event{events.ForReservation(events.CancelRequested, r, now)}

		if wasHold {
			if err := r.Cancel(now); err != nil {
				return err
			}
			if err := inventory.Release(ctx, tx.Sessions(), sess); err != nil {
				return err
			}
			evs = append(evs, events.ForReservation(events.Canceled, r, now))
		}

		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		res = r

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, evs...)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.mapErr(err))
	}

	return res, nil
}

// ApproveCancellation cancels a CANCEL_REQUESTED reservation and gives
// its seat back. It is refused once the session has started.
func (s *Service) ApproveCancellation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	const op = "service.reservation.ApproveCancellation"

	var res *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		sess, r, err := s.lockBoth(ctx, tx, reservationID)
		if err != nil {
			return err
		}

		if r.Status != domain.StatusCancelRequested {
			return &InvalidStateError{Op: "approve cancellation of", From: r.Status}
		}

		now := s.clock.Now()
		if sess.HasStarted(now) {
			return ErrSessionStarted
		}

		if err := r.Cancel(now); err != nil {
			return err
		}
		if err := inventory.Release(ctx, tx.Sessions(), sess); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		res = r

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, events.ForReservation(events.Canceled, r, now))
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.mapErr(err))
	}

	return res, nil
}

// RejectCancellation returns a CANCEL_REQUESTED reservation to PAID.
func (s *Service) RejectCancellation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	const op = "service.reservation.RejectCancellation"

	var res *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := r.RejectCancel(now); err != nil {
			return err
		}
		if err := tx.Reservations().Update(ctx, r); err != nil {
			return err
		}
		res = r

		after(func(ctx context.Context) {
			s.notifier.Notify(ctx, events.ForReservation(events.CancelRejected, r, now))
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.mapErr(err))
	}

	return res, nil
}

// lockBoth locks the reservation's session, then the reservation itself.
// The unlocked read only discovers the session id; it cannot change.
func (s *Service) lockBoth(
	ctx context.Context,
	tx repository.Tx,
	reservationID int64,
) (*domain.Session, *domain.Reservation, error) {
	peek, err := tx.Reservations().Get(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := inventory.Lock(ctx, tx.Sessions(), peek.SessionID)
	if err != nil {
		return nil, nil, err
	}

	r, err := tx.Reservations().GetForUpdate(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}

	return sess, r, nil
}

func (s *Service) allow(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}

	d, err := s.limiter.Allow(ctx, "user:"+strconv.FormatInt(userID, 10))
	if err != nil {
		// the limiter is advisory; bookings go on without it
		slog.WarnContext(ctx, "hold rate limiter unavailable", slog.Any("err", err))
		return nil
	}

	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	return nil
}

func (s *Service) mapErr(err error) error {
	switch {
	case errors.Is(err, inventory.ErrSessionFull):
		return ErrConflict
	case errors.Is(err, inventory.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repository.ErrNotFound):
		return ErrReservationNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return invalidState(err)
	default:
		return storeErr(err)
	}
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.cfg.DefaultHoldTTL
	}

	if ttl < s.cfg.MinHoldTTL {
		return s.cfg.MinHoldTTL
	}

	if ttl > s.cfg.MaxHoldTTL {
		return s.cfg.MaxHoldTTL
	}

	return ttl
}
