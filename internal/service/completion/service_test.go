package completion

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository/memory"
	"github.com/kirinyoku/oneday/internal/service/coupon"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	sweeper *Service
	res     *reservation.Service
	coupons *coupon.Service
	store   *memory.Store
	clock   *clock.Fake
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewFake(t0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		sweeper: New(store, nil, clk, log, Config{}),
		res:     reservation.New(store, nil, nil, clk, reservation.Config{}),
		coupons: coupon.New(store, clk),
		store:   store,
		clock:   clk,
	}
}

// paidFor books and pays a seat in a session starting in startsIn.
func (f *fixture) paidFor(t *testing.T, userID int64, startsIn time.Duration) *domain.Reservation {
	t.Helper()
	ctx := context.Background()
	sid, err := f.store.Sessions().Create(ctx, &domain.Session{
		Title:    "Calligraphy",
		StartsAt: f.clock.Now().Add(startsIn),
		Capacity: 4,
	})
	require.NoError(t, err)

	r, err := f.res.CreateHold(ctx, sid, userID, 0)
	require.NoError(t, err)
	r, err = f.res.ConfirmPayment(ctx, r.ID, "")
	require.NoError(t, err)
	return r
}

func TestSweepCompletesAndIssuesCoupon(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tpl, _, err := f.coupons.SeedDefault(ctx)
	require.NoError(t, err)

	r := f.paidFor(t, 5, time.Hour)
	future := f.paidFor(t, 6, 72*time.Hour)

	f.clock.Advance(2 * time.Hour)
	n, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Reservations().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, f.clock.Now(), *got.CompletedAt)

	c, err := f.store.Coupons().IssuedByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.UserID)
	assert.Equal(t, tpl.ID, c.TemplateID)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, tpl.ValidDays), c.ExpiresAt)

	got, err = f.store.Reservations().Get(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
}

func TestSweepLeavesSeatCountAlone(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	r := f.paidFor(t, 5, time.Hour)

	f.clock.Advance(2 * time.Hour)
	_, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)

	s, err := f.store.Sessions().Get(ctx, r.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reserved)
}

func TestSweepWithoutActiveTemplate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	r := f.paidFor(t, 5, time.Hour)

	f.clock.Advance(2 * time.Hour)
	n, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Reservations().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	wallet, err := f.coupons.MyCoupons(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, wallet)
}

func TestOverlappingSweepsIssueOneCoupon(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, _, err := f.coupons.SeedDefault(ctx)
	require.NoError(t, err)

	var ids []int64
	for u := int64(1); u <= 5; u++ {
		ids = append(ids, f.paidFor(t, u, time.Hour).ID)
	}
	f.clock.Advance(2 * time.Hour)

	counts := make([]int, 3)
	var wg sync.WaitGroup
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.sweeper.Sweep(ctx)
			assert.NoError(t, err)
			counts[i] = n
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, counts[0]+counts[1]+counts[2])

	for u := int64(1); u <= 5; u++ {
		wallet, err := f.coupons.MyCoupons(ctx, u)
		require.NoError(t, err)
		assert.Len(t, wallet, 1, "user %d", u)
	}
	for _, id := range ids {
		_, err := f.store.Coupons().IssuedByReservation(ctx, id)
		require.NoError(t, err)
	}

	n, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCompleteSkipsRowCanceledAfterScan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tpl, _, err := f.coupons.SeedDefault(ctx)
	require.NoError(t, err)

	r := f.paidFor(t, 5, time.Hour)
	_, err = f.res.RequestCancellation(ctx, r.ID, 5, "")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	done, granted, err := f.sweeper.complete(ctx, r.ID, tpl, f.clock.Now())
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, granted)

	got, err := f.store.Reservations().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelRequested, got.Status)
}
