package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/repository/memory"
)

func TestHooksRunAfterCommitInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	u := NewUoW(store)

	var order []string
	var sid int64
	err := u.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error {
		id, err := tx.Sessions().Create(ctx, &domain.Session{Title: "Yoga", Capacity: 1})
		if err != nil {
			return err
		}
		sid = id
		after(func(ctx context.Context) {
			_, err := store.Sessions().Get(ctx, id)
			assert.NoError(t, err, "hook must see the committed row")
			order = append(order, "first")
		})
		after(nil)
		after(func(context.Context) { order = append(order, "second") })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.NotZero(t, sid)
}

func TestHooksSkippedOnRollback(t *testing.T) {
	boom := errors.New("boom")
	u := NewUoW(memory.New())

	ran := false
	err := u.Do(context.Background(), func(_ context.Context, _ repository.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestHooksOutliveCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := NewUoW(memory.New())

	var hookErr error
	err := u.Do(ctx, func(_ context.Context, _ repository.Tx, after func(AfterCommit)) error {
		after(func(ctx context.Context) { hookErr = ctx.Err() })
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, hookErr)
}
