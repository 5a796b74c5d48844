package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, s *Store, capacity int) int64 {
	t.Helper()
	id, err := s.Sessions().Create(context.Background(), &domain.Session{
		Title:    "pottery",
		StartsAt: t0.Add(24 * time.Hour),
		Capacity: capacity,
	})
	require.NoError(t, err)
	return id
}

func hold(sessionID, userID int64) *domain.Reservation {
	exp := t0.Add(10 * time.Minute)
	return &domain.Reservation{
		SessionID:     sessionID,
		UserID:        userID,
		Status:        domain.StatusHold,
		HoldExpiresAt: &exp,
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

func TestRunTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 3)

	boom := errors.New("boom")
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Sessions().SetReserved(ctx, sid, 2); err != nil {
			return err
		}
		if _, err := tx.Reservations().Create(ctx, hold(sid, 7)); err != nil {
			return err
		}

		got, err := tx.Sessions().Get(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Reserved, "a transaction sees its own writes")

		outside, err := s.Sessions().Get(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 0, outside.Reserved, "staged writes are invisible outside")

		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)

	list, err := s.Reservations().ListByUser(ctx, 7, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, s.locks.size())
}

func TestRunTxReleasesLocksOnCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 1)

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Sessions().GetForUpdate(ctx, sid)
		require.NoError(t, err)
		// reentrant within one transaction
		_, err = tx.Sessions().GetForUpdate(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, 1, s.locks.size())
		return tx.Sessions().SetReserved(ctx, sid, 1)
	})
	require.NoError(t, err)
	assert.Zero(t, s.locks.size())

	got, err := s.Sessions().Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Reserved)
}

func TestGetForUpdateTimesOut(t *testing.T) {
	ctx := context.Background()
	s := New(WithLockTimeout(30 * time.Millisecond))
	sid := seedSession(t, s, 1)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Sessions().GetForUpdate(ctx, sid); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Sessions().GetForUpdate(ctx, sid)
		return err
	})
	require.ErrorIs(t, err, repository.ErrLockTimeout)
	assert.True(t, repository.IsTransient(err))

	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, s.locks.size())
}

func TestGetForUpdateWaitsForHolder(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 5)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Sessions().GetForUpdate(ctx, sid); err != nil {
				return err
			}
			close(locked)
			<-release
			return tx.Sessions().SetReserved(ctx, sid, 4)
		})
	}()
	<-locked

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	var seen int
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		v, err := tx.Sessions().GetForUpdate(ctx, sid)
		if err != nil {
			return err
		}
		seen = v.Reserved
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 4, seen, "the waiter reads the committed value")
}

func TestSetReservedBounds(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 2)

	require.ErrorIs(t, s.Sessions().SetReserved(ctx, sid, 3), repository.ErrConflict)
	require.ErrorIs(t, s.Sessions().SetReserved(ctx, sid, -1), repository.ErrConflict)
	require.ErrorIs(t, s.Sessions().SetReserved(ctx, 999, 1), repository.ErrNotFound)
	require.NoError(t, s.Sessions().SetReserved(ctx, sid, 2))
}

func TestDuplicateActiveReservation(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 5)

	first, err := s.Reservations().Create(ctx, hold(sid, 1))
	require.NoError(t, err)

	_, err = s.Reservations().Create(ctx, hold(sid, 1))
	require.ErrorIs(t, err, repository.ErrConflict)

	// a terminal row no longer blocks a new one
	r, err := s.Reservations().Get(ctx, first)
	require.NoError(t, err)
	r.Status = domain.StatusExpired
	r.HoldExpiresAt = nil
	require.NoError(t, s.Reservations().Update(ctx, r))

	_, err = s.Reservations().Create(ctx, hold(sid, 1))
	require.NoError(t, err)
}

func TestCommitRechecksActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	sid := seedSession(t, s, 5)

	a, b := s.begin(), s.begin()
	_, err := a.Reservations().Create(ctx, hold(sid, 1))
	require.NoError(t, err)
	_, err = b.Reservations().Create(ctx, hold(sid, 1))
	require.NoError(t, err)

	require.NoError(t, a.commit())
	require.ErrorIs(t, b.commit(), repository.ErrConflict)

	list, err := s.Reservations().ListByUser(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIssueOncePerReservation(t *testing.T) {
	ctx := context.Background()
	s := New()

	tplID, err := s.Coupons().CreateTemplate(ctx, &domain.CouponTemplate{
		Name:          "reward",
		DiscountType:  domain.DiscountPercent,
		DiscountValue: 10,
		ValidDays:     7,
		Active:        true,
	})
	require.NoError(t, err)

	rid := int64(42)
	tpl, err := s.Coupons().GetTemplate(ctx, tplID)
	require.NoError(t, err)

	_, err = s.Coupons().Issue(ctx, domain.NewIssuedCoupon(9, tpl, &rid, t0))
	require.NoError(t, err)
	_, err = s.Coupons().Issue(ctx, domain.NewIssuedCoupon(9, tpl, &rid, t0))
	require.ErrorIs(t, err, repository.ErrConflict)

	// two racing transactions: the later commit loses
	a, b := s.begin(), s.begin()
	other := int64(43)
	_, err = a.Coupons().Issue(ctx, domain.NewIssuedCoupon(9, tpl, &other, t0))
	require.NoError(t, err)
	_, err = b.Coupons().Issue(ctx, domain.NewIssuedCoupon(9, tpl, &other, t0))
	require.NoError(t, err)
	require.NoError(t, a.commit())
	require.ErrorIs(t, b.commit(), repository.ErrConflict)

	got, err := s.Coupons().IssuedByReservation(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, tplID, got.TemplateID)
}

func TestWalletListingAndPurge(t *testing.T) {
	ctx := context.Background()
	s := New()

	tplID, err := s.Coupons().CreateTemplate(ctx, &domain.CouponTemplate{
		Name: "reward", DiscountType: domain.DiscountFixed, DiscountValue: 500, ValidDays: 7, Active: true,
	})
	require.NoError(t, err)
	tpl, err := s.Coupons().GetTemplate(ctx, tplID)
	require.NoError(t, err)

	fresh, err := s.Coupons().Issue(ctx, domain.NewIssuedCoupon(1, tpl, nil, t0))
	require.NoError(t, err)
	_, err = s.Coupons().Issue(ctx, domain.NewIssuedCoupon(1, tpl, nil, t0.AddDate(0, 0, -30)))
	require.NoError(t, err)
	used, err := s.Coupons().Issue(ctx, domain.NewIssuedCoupon(1, tpl, nil, t0))
	require.NoError(t, err)
	require.NoError(t, s.Coupons().MarkUsed(ctx, used, t0))
	require.ErrorIs(t, s.Coupons().MarkUsed(ctx, used, t0), repository.ErrConflict)
	_, err = s.Coupons().Issue(ctx, domain.NewIssuedCoupon(2, tpl, nil, t0))
	require.NoError(t, err)

	n, err := s.Coupons().DeleteUnusableByUser(ctx, 1, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := s.Coupons().ListUsableByUser(ctx, 1, t0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh, list[0].ID)
	require.NotNil(t, list[0].Template)
	assert.Equal(t, "reward", list[0].Template.Name)
}

func TestFirstActiveTemplateLowestID(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Coupons().FirstActiveTemplate(ctx)
	require.ErrorIs(t, err, repository.ErrNotFound)

	a, err := s.Coupons().CreateTemplate(ctx, &domain.CouponTemplate{Name: "a", DiscountType: domain.DiscountPercent, DiscountValue: 5, ValidDays: 1, Active: true})
	require.NoError(t, err)
	_, err = s.Coupons().CreateTemplate(ctx, &domain.CouponTemplate{Name: "b", DiscountType: domain.DiscountPercent, DiscountValue: 5, ValidDays: 1, Active: true})
	require.NoError(t, err)

	got, err := s.Coupons().FirstActiveTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, got.ID)

	require.NoError(t, s.Coupons().SetTemplateActive(ctx, a, false))
	got, err = s.Coupons().FirstActiveTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	s := New()

	past, err := s.Sessions().Create(ctx, &domain.Session{Title: "past", StartsAt: t0.Add(-time.Hour), Capacity: 5})
	require.NoError(t, err)
	future := seedSession(t, s, 5)

	expired := hold(future, 1)
	exp := t0.Add(-time.Minute)
	expired.HoldExpiresAt = &exp
	expiredID, err := s.Reservations().Create(ctx, expired)
	require.NoError(t, err)
	_, err = s.Reservations().Create(ctx, hold(future, 2))
	require.NoError(t, err)

	paid := hold(past, 3)
	paid.Status = domain.StatusPaid
	paid.HoldExpiresAt = nil
	paid.CreatedAt = t0.Add(time.Second)
	paidID, err := s.Reservations().Create(ctx, paid)
	require.NoError(t, err)

	holds, err := s.Reservations().ListExpiredHolds(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, expiredID, holds[0].ID)

	started, err := s.Reservations().ListPaidStarted(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, paidID, started[0].ID)

	all, err := s.Reservations().ListByStatus(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, paidID, all[0].ID, "newest first")

	onlyHolds, err := s.Reservations().ListByStatus(ctx, domain.StatusHold)
	require.NoError(t, err)
	assert.Len(t, onlyHolds, 2)
}
