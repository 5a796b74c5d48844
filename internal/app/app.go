package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/config"
	"github.com/kirinyoku/oneday/internal/events"
	"github.com/kirinyoku/oneday/internal/mysql"
	"github.com/kirinyoku/oneday/internal/postgres"
	"github.com/kirinyoku/oneday/internal/queue"
	"github.com/kirinyoku/oneday/internal/redis"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/repository/memory"
	mysqlrepo "github.com/kirinyoku/oneday/internal/repository/mysql"
	postgresrepo "github.com/kirinyoku/oneday/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/oneday/internal/repository/redis"
	"github.com/kirinyoku/oneday/internal/scheduler"
	"github.com/kirinyoku/oneday/internal/service"
	"github.com/kirinyoku/oneday/internal/service/completion"
	"github.com/kirinyoku/oneday/internal/service/expiry"
	"github.com/kirinyoku/oneday/internal/service/reservation"
	httpgin "github.com/kirinyoku/oneday/internal/transport/http/gin"
)

const (
	initTimeout     = 15 * time.Second
	shutdownTimeout = 5 * time.Second
	idemResultTTL   = 2 * time.Hour
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	jobs     []*scheduler.Job
	consumer *queue.Consumer
	pubsub   *redisrepo.EventsPubSub
	hub      *httpgin.Hub

	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, hub: httpgin.NewHub()}

	// Initialize store
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// Optional Redis: cache, idempotency keys, rate limit, pub/sub
	var (
		rdb     *goredis.Client
		cache   *redisrepo.Cache
		idem    *redisrepo.IdempotencyStore
		limiter reservation.Limiter
		pubs    events.Multi
	)
	if cfg.Redis.Enabled() {
		rdb, err = redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.NewCache(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, idemResultTTL)
		if cfg.Holds.RateLimit > 0 {
			limiter = redisrepo.NewSlidingWindowLimiter(rdb, "holds", cfg.Holds.RateLimit, cfg.Holds.RateWindow)
		}
		// watchers on every instance hear about a change through Redis
		a.pubsub = redisrepo.NewEventsPubSub(rdb)
		pubs = append(pubs, a.pubsub)
	} else {
		logger.Warn("REDIS_ADDR is empty: running without cache, idempotency keys and rate limiting")
		pubs = append(pubs, a.hub)
	}

	// Optional broker
	if cfg.RabbitMQ.Enabled() {
		pub := queue.NewPublisher(cfg.RabbitMQ.URL, logger)
		a.closers = append(a.closers, func() { _ = pub.Close() })
		pubs = append(pubs, pub)
	}

	// Initialize services
	services := service.NewServices(store, cache, pubs, limiter, clock.System{}, logger, service.Config{
		Reservation: reservation.Config{
			DefaultHoldTTL: cfg.Holds.DefaultTTL,
			MinHoldTTL:     cfg.Holds.MinTTL,
			MaxHoldTTL:     cfg.Holds.MaxTTL,
		},
		Expiry:     expiry.Config{BatchSize: cfg.Sweeps.BatchSize},
		Completion: completion.Config{BatchSize: cfg.Sweeps.BatchSize},
	})

	if cfg.SeedCoupon {
		tpl, created, err := services.Coupon.SeedDefault(ctx)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to seed coupon template: %w", err)
		}
		if created {
			logger.Info("default coupon template created", slog.Int64("template_id", tpl.ID))
		}
	}

	a.jobs = []*scheduler.Job{
		scheduler.NewJob("expiry", cfg.Sweeps.ExpiryInterval, services.Expiry.Sweep, logger),
		scheduler.NewJob("completion", cfg.Sweeps.CompletionInterval, services.Completion.Sweep, logger),
	}

	if cfg.RabbitMQ.Enabled() {
		a.consumer = queue.NewConsumer(cfg.RabbitMQ.URL, services.Reservation, logger)
	}

	// Initialize Gin router
	router := httpgin.NewRouter(services, httpgin.Deps{
		Idem:     idem,
		Hub:      a.hub,
		Sweepers: a.jobs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	cfg := a.cfg

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.New(ctx, postgres.Config{
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Name:     cfg.Postgres.Name,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if cfg.Store.Migrate {
			if err := postgresrepo.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("failed to migrate postgres: %w", err)
			}
		}
		return postgresrepo.NewStore(pool, cfg.Store.LockTimeout), nil

	case config.DriverMySQL:
		db, err := mysql.New(ctx, mysql.Config{
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Addr:     cfg.MySQL.Addr,
			DBName:   cfg.MySQL.Name,
			MaxConns: cfg.MySQL.MaxConns,
			LockWait: cfg.Store.LockTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mysql: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		if cfg.Store.Migrate {
			if err := mysqlrepo.Migrate(ctx, db); err != nil {
				return nil, fmt.Errorf("failed to migrate mysql: %w", err)
			}
		}
		return mysqlrepo.NewStore(db), nil

	case config.DriverMemory:
		a.logger.Warn("using the in-memory store: data is lost on restart")
		return memory.New(memory.WithLockTimeout(cfg.Store.LockTimeout)), nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// request contexts end with the group so watch streams let go on shutdown
	a.httpServer.BaseContext = func(net.Listener) context.Context { return gCtx }

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	// Sweepers
	for _, j := range a.jobs {
		g.Go(func() error { return j.Run(gCtx) })
	}

	// Payment confirmations from the broker
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gCtx) })
	}

	// Session changes from every instance to local watchers
	if a.pubsub != nil {
		g.Go(func() error { return a.relay(gCtx) })
	}

	return g.Wait()
}

// relay keeps the Redis subscription alive until ctx is done.
func (a *App) relay(ctx context.Context) error {
	const retry = 2 * time.Second

	for {
		err := a.pubsub.Subscribe(ctx, nil, a.hub.Relay)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("session change subscription lost",
			slog.Any("err", err), slog.Duration("retry_in", retry))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
