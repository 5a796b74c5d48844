package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/repository/memory"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *reservation.Service, *memory.Store, *clock.Fake) {
	t.Helper()
	store := memory.New()
	clk := clock.NewFake(t0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, nil, clk, log, Config{}),
		reservation.New(store, nil, nil, clk, reservation.Config{}),
		store, clk
}

func newSession(t *testing.T, store *memory.Store, capacity int) int64 {
	t.Helper()
	id, err := store.Sessions().Create(context.Background(), &domain.Session{
		Title:    "Baking",
		StartsAt: t0.Add(48 * time.Hour),
		Capacity: capacity,
	})
	require.NoError(t, err)
	return id
}

func TestSweepExpiresStaleHold(t *testing.T) {
	ctx := context.Background()
	sweeper, res, store, clk := setup(t)
	sid := newSession(t, store, 1)

	r, err := res.CreateHold(ctx, sid, 1, 5*time.Minute)
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Reservations().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.Nil(t, got.HoldExpiresAt)

	s, err := store.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reserved)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sweeper, res, store, clk := setup(t)
	sid := newSession(t, store, 3)

	for u := int64(1); u <= 3; u++ {
		_, err := res.CreateHold(ctx, sid, u, 5*time.Minute)
		require.NoError(t, err)
	}

	clk.Advance(10 * time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s, err := store.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reserved)
}

func TestSweepLeavesLiveAndPaidHolds(t *testing.T) {
	ctx := context.Background()
	sweeper, res, store, clk := setup(t)
	sid := newSession(t, store, 3)

	short, err := res.CreateHold(ctx, sid, 1, 5*time.Minute)
	require.NoError(t, err)
	long, err := res.CreateHold(ctx, sid, 2, 20*time.Minute)
	require.NoError(t, err)
	paid, err := res.CreateHold(ctx, sid, 3, 5*time.Minute)
	require.NoError(t, err)
	_, err = res.ConfirmPayment(ctx, paid.ID, "")
	require.NoError(t, err)

	// past the short deadline only; exactly at a deadline is not yet expired
	clk.Set(*short.HoldExpiresAt)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clk.Advance(time.Second)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Reservations().Get(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHold, got.Status)

	got, err = store.Reservations().Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)

	s, err := store.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Reserved)
}

func TestExpireSkipsRowPaidAfterScan(t *testing.T) {
	ctx := context.Background()
	sweeper, res, store, clk := setup(t)
	sid := newSession(t, store, 1)

	r, err := res.CreateHold(ctx, sid, 1, 5*time.Minute)
	require.NoError(t, err)
	_, err = res.ConfirmPayment(ctx, r.ID, "")
	require.NoError(t, err)

	// the scan saw a HOLD; the row is PAID by the time the lock is taken
	clk.Advance(time.Hour)
	ok, err := sweeper.expire(ctx, r.ID, sid, clk.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	s, err := store.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reserved)
}

type flakyStore struct {
	*memory.Store
	failID int64
}

func (f flakyStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.Store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, flakyTx{Tx: tx, failID: f.failID})
	})
}

type flakyTx struct {
	repository.Tx
	failID int64
}

func (t flakyTx) Reservations() repository.ReservationRepo {
	return flakyReservations{ReservationRepo: t.Tx.Reservations(), failID: t.failID}
}

type flakyReservations struct {
	repository.ReservationRepo
	failID int64
}

func (r flakyReservations) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	if id == r.failID {
		return nil, errors.New("corrupt row")
	}
	return r.ReservationRepo.GetForUpdate(ctx, id)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	_, res, store, clk := setup(t)
	sid := newSession(t, store, 3)

	var ids []int64
	for u := int64(1); u <= 3; u++ {
		r, err := res.CreateHold(ctx, sid, u, 5*time.Minute)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	sweeper := New(flakyStore{Store: store, failID: ids[0]}, nil, clk,
		slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	clk.Advance(6 * time.Minute)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Reservations().Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHold, got.Status)

	s, err := store.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reserved)
}
