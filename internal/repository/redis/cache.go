package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache holds JSON read models of sessions. A nil *Cache stores nothing,
// which is how the service runs without Redis.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// GetOrSetJSON returns the cached value of key, or runs loader and caches
// its result for ttl. Concurrent misses of one key share a loader call.
// A broken cache degrades to calling loader; loader errors are not cached.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	var out T
	if ok, err := c.read(ctx, key, &out); err == nil && ok {
		return out, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		var again T
		if ok, err := c.read(ctx, key, &again); err == nil && ok {
			return again, nil
		}

		fresh, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: unexpected %T", key, v)
	}

	return out, nil
}

// InvalidateSession drops every cached view of the session.
func (c *Cache) InvalidateSession(ctx context.Context, sessionID int64) error {
	if c == nil {
		return nil
	}

	return c.rdb.Del(ctx, KeySession(sessionID), KeySessionAvailability(sessionID)).Err()
}

func (c *Cache) read(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}

	if err := json.Unmarshal(b, dst); err != nil {
		// a stale shape from an older build is a miss
		return false, nil
	}
	return true, nil
}

// write is best effort; the next read just misses.
func (c *Cache) write(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, b, ttl).Err()
}
