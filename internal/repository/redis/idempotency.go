package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK"
	idemResult = "RES:"
)

type IdemState int

const (
	// IdemNew means the caller owns the key and must SaveResult or Release.
	IdemNew IdemState = iota
	// IdemDone means a previous request finished; its payload is returned.
	IdemDone
	// IdemInFlight means another request holds the key right now.
	IdemInFlight
)

// IdempotencyStore remembers the response of a keyed request so a retry
// with the same Idempotency-Key replays it instead of acting twice.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Begin claims key for lockTTL unless a result or another claim exists.
func (s *IdempotencyStore) Begin(ctx context.Context, key string, lockTTL time.Duration) (IdemState, string, error) {
	if payload, ok, err := s.GetResult(ctx, key); err != nil || ok {
		return IdemDone, payload, err
	}

	acquired, err := s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
	if err != nil {
		return IdemInFlight, "", err
	}
	if acquired {
		return IdemNew, "", nil
	}

	// lost the race: the winner may already have finished
	if payload, ok, err := s.GetResult(ctx, key); err != nil || ok {
		return IdemDone, payload, err
	}

	return IdemInFlight, "", nil
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResult+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemResult) {
		return strings.TrimPrefix(v, idemResult), true, nil
	}

	return "", false, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
