package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kirinyoku/oneday/internal/repository"
)

type lockKind uint8

const (
	lockSession lockKind = iota + 1
	lockReservation
	lockIssuedCoupon
)

type lockKey struct {
	kind lockKind
	id   int64
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// lockTable hands out one exclusive lock per key. Entries are created on
// demand and dropped when nobody holds or waits for them.
type lockTable struct {
	mu sync.Mutex
	m  map[lockKey]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{m: make(map[lockKey]*lockEntry)}
}

func (lt *lockTable) acquire(ctx context.Context, k lockKey, timeout time.Duration) error {
	lt.mu.Lock()
	e, ok := lt.m[k]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		lt.m[k] = e
	}
	e.refs++
	lt.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		lt.drop(k, e)
		return ctx.Err()
	case <-expired:
		lt.drop(k, e)
		return repository.ErrLockTimeout
	}
}

func (lt *lockTable) release(k lockKey) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	e, ok := lt.m[k]
	if !ok {
		return
	}
	<-e.ch
	lt.dropLocked(k, e)
}

func (lt *lockTable) drop(k lockKey, e *lockEntry) {
	lt.mu.Lock()
	lt.dropLocked(k, e)
	lt.mu.Unlock()
}

func (lt *lockTable) dropLocked(k lockKey, e *lockEntry) {
	e.refs--
	if e.refs == 0 {
		delete(lt.m, k)
	}
}

// size reports how many keys are currently held or awaited.
func (lt *lockTable) size() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.m)
}
