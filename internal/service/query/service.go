// Package query serves the read side: session details and availability
// through the Redis read-through cache, and reservation lookups.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
)

type Config struct {
	SessionTTL      time.Duration
	AvailabilityTTL time.Duration
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	clock clock.Clock
	cfg   Config
}

// New builds the read service. A nil cache reads straight from the store.
func New(store repository.Store, cache *redisrepo.Cache, clk clock.Clock, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Second
	}

	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store: store,
		cache: cache,
		clock: clk,
		cfg:   cfg,
	}
}

type Availability struct {
	SessionID int64     `json:"session_id"`
	StartsAt  time.Time `json:"starts_at"`
	Capacity  int       `json:"capacity"`
	Reserved  int       `json:"reserved"`
	Remaining int       `json:"remaining"`
	Started   bool      `json:"started"`
}

// Session retrieves a session by its ID, utilizing a caching layer.
//
// Returns:
//   - *domain.Session: the session.
//   - error: query.ErrSessionNotFound if the session does not exist.
func (s *Service) Session(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "service.query.Session"

	sess, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySession(id),
		s.cfg.SessionTTL,
		func(ctx context.Context) (domain.Session, error) {
			return s.loadSession(ctx, id)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &sess, nil
}

// Availability returns the seat counters of a session. The counters are
// cached briefly and dropped after every write that moves them; the
// started flag is computed on every call.
func (s *Service) Availability(ctx context.Context, id int64) (*Availability, error) {
	const op = "service.query.Availability"

	a, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySessionAvailability(id),
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (Availability, error) {
			sess, err := s.loadSession(ctx, id)
			if err != nil {
				return Availability{}, err
			}

			return Availability{
				SessionID: sess.ID,
				StartsAt:  sess.StartsAt,
				Capacity:  sess.Capacity,
				Reserved:  sess.Reserved,
				Remaining: sess.Remaining(),
			}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	a.Started = !a.StartsAt.After(s.clock.Now())

	return &a, nil
}

func (s *Service) GetReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "service.query.GetReservation"

	r, err := s.store.Reservations().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return r, nil
}

// ListForUser returns the user's reservations newest first, optionally
// filtered by status. "ALL" and "" match every status.
func (s *Service) ListForUser(ctx context.Context, userID int64, status string) ([]domain.Reservation, error) {
	const op = "service.query.ListForUser"

	st, err := ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	list, err := s.store.Reservations().ListByUser(ctx, userID, st)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return list, nil
}

// ParseStatus accepts a status name in any case. The empty status means
// no filter.
func ParseStatus(raw string) (domain.ReservationStatus, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" || raw == "ALL" {
		return "", nil
	}

	st := domain.ReservationStatus(raw)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}

	return st, nil
}

func (s *Service) loadSession(ctx context.Context, id int64) (domain.Session, error) {
	sess, err := s.store.Sessions().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Session{}, ErrSessionNotFound
		}

		return domain.Session{}, err
	}

	return *sess, nil
}
