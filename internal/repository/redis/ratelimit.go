package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// luaSlidingWindow keeps one sorted-set member per hit, scored by its
// time in milliseconds, and trims everything older than the window.
//
//	KEYS[1] window key
//	ARGV[1] now_ms, ARGV[2] window_ms, ARGV[3] limit, ARGV[4] unique member
//
// Returns {allowed, hits, retry_ms}. A refused hit is not recorded, so a
// client hammering the endpoint does not extend its own ban.
const luaSlidingWindow = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local hits = redis.call('ZCARD', KEYS[1])

if hits >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then retry = tonumber(oldest[2]) + window - now end
  if retry < 0 then retry = 0 end
  return {0, hits, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, hits + 1, 0}
`

type Decision struct {
	Allowed bool
	// Count is the number of admitted hits inside the window.
	Count      int64
	RetryAfter time.Duration
}

// SlidingWindowLimiter admits at most limit hits per id within any
// window-long span. The decision is taken atomically in Redis, so every
// instance shares one budget per id.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	scope string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}

	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, id string) (Decision, error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	if l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	vals, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{KeyRateLimit(l.scope, id)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s:%w", op, err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("%s: script returned %d values", op, len(vals))
	}

	return Decision{
		Allowed:    vals[0] == 1,
		Count:      vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
