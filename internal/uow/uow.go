// Package uow runs a store transaction together with the side effects
// that may only happen once it has committed.
package uow

import (
	"context"

	"github.com/kirinyoku/oneday/internal/repository"
)

// AfterCommit is a side effect deferred until the transaction commits.
type AfterCommit func(ctx context.Context)

// TxFunc is the body of a unit of work. It registers deferred effects
// through after.
type TxFunc func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error

type UoW struct {
	store repository.Store
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn in one transaction. Effects registered by fn run in order
// after the commit, on a context that is not canceled with the caller's:
// the write happened, so its notifications must still go out. Effects of
// a failed attempt never run.
func (u *UoW) Do(ctx context.Context, fn TxFunc) error {
	var pending []AfterCommit

	err := u.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pending = pending[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			if h != nil {
				pending = append(pending, h)
			}
		})
	})
	if err != nil {
		return err
	}

	hookCtx := context.WithoutCancel(ctx)
	for _, h := range pending {
		h(hookCtx)
	}

	return nil
}
