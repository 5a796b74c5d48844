package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/events"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type availability struct {
	Remaining int `json:"remaining"`
}

func TestGetOrSetJSON(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	c := NewCache(rdb)

	var calls atomic.Int32
	load := func(context.Context) (availability, error) {
		calls.Add(1)
		return availability{Remaining: 4}, nil
	}

	key := KeySessionAvailability(7)
	got, err := GetOrSetJSON(ctx, c, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Remaining)

	got, err = GetOrSetJSON(ctx, c, key, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Remaining)
	assert.EqualValues(t, 1, calls.Load())
	assert.True(t, mr.Exists(key))

	require.NoError(t, c.InvalidateSession(ctx, 7))
	assert.False(t, mr.Exists(key))

	_, err = GetOrSetJSON(ctx, c, key, time.Minute, load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetOrSetJSONLoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	c := NewCache(rdb)

	boom := errors.New("boom")
	_, err := GetOrSetJSON(ctx, c, "k", time.Minute, func(context.Context) (availability, error) {
		return availability{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestNilCacheAlwaysLoads(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	var calls int
	for range 2 {
		_, err := GetOrSetJSON(ctx, c, "k", time.Minute, func(context.Context) (availability, error) {
			calls++
			return availability{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
	assert.NoError(t, c.InvalidateSession(ctx, 1))
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemHold(1, 2, "abc")

	state, _, err := s.Begin(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, IdemNew, state)

	state, _, err = s.Begin(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, IdemInFlight, state)

	require.NoError(t, s.SaveResult(ctx, key, `{"id":5}`))
	state, payload, err := s.Begin(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, IdemDone, state)
	assert.JSONEq(t, `{"id":5}`, payload)

	require.NoError(t, s.Release(ctx, key))
	state, _, err = s.Begin(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, IdemNew, state)
}

func TestSlidingWindowLimiter(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)

	l := NewSlidingWindowLimiter(rdb, "holds", 2, time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 1; i <= 2; i++ {
		d, err := l.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.EqualValues(t, i, d.Count)
	}

	d, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	// other ids have their own window
	d, err = l.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(61 * time.Second)
	d, err = l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestEventsPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, rdb := newClient(t)
	ps := NewEventsPubSub(rdb)

	ready := make(chan struct{})
	got := make(chan events.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- ps.Subscribe(ctx, ready, func(_ context.Context, ev events.Event) {
			got <- ev
		})
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	require.NoError(t, ps.Publish(ctx, events.Event{Type: events.Paid, SessionID: 4, ReservationID: 8}))

	select {
	case ev := <-got:
		assert.Equal(t, events.Paid, ev.Type)
		assert.Equal(t, int64(4), ev.SessionID)
		assert.Equal(t, int64(8), ev.ReservationID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
