package service

import (
	"log/slog"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/repository"
	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
	"github.com/kirinyoku/oneday/internal/service/admin"
	"github.com/kirinyoku/oneday/internal/service/completion"
	"github.com/kirinyoku/oneday/internal/service/coupon"
	"github.com/kirinyoku/oneday/internal/service/expiry"
	"github.com/kirinyoku/oneday/internal/service/query"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
	Coupon      *coupon.Service
	Expiry      *expiry.Service
	Completion  *completion.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
	Expiry      expiry.Config
	Completion  completion.Config
}

// NewServices wires every service onto one store. cache and limiter may
// be nil when Redis is not configured; pub may be nil to drop events.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	pub events.Publisher,
	limiter reservation.Limiter,
	clk clock.Clock,
	log *slog.Logger,
	cfg Config,
) *Services {
	if log == nil {
		log = slog.Default()
	}

	var inv events.Invalidator
	if cache != nil {
		inv = cache
	}
	notifier := events.NewNotifier(inv, pub, log)

	return &Services{
		Reservation: reservation.New(store, notifier, limiter, clk, cfg.Reservation),
		Query:       query.New(store, cache, clk, cfg.Query),
		Admin:       admin.New(store, notifier, clk),
		Coupon:      coupon.New(store, clk),
		Expiry:      expiry.New(store, notifier, clk, log.With(slog.String("sweeper", "expiry")), cfg.Expiry),
		Completion:  completion.New(store, notifier, clk, log.With(slog.String("sweeper", "completion")), cfg.Completion),
	}
}
