// Package redis opens the Redis client shared by the cache, the
// idempotency store, the hold rate limiter and the change pub/sub.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

type Config struct {
	Addr     string
	Password string
	DB       int
	// PoolSize overrides the go-redis default of ten per CPU.
	PoolSize int
}

func (cfg Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		// the pub/sub connection blocks on reads; keep a few spare
		MinIdleConns: 2,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts
}

// New connects and pings. The client is closed again if the ping fails.
func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	const op = "redis.New"

	if cfg.Addr == "" {
		return nil, fmt.Errorf("%s: empty address", op)
	}

	client := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return client, nil
}
