// Package memory is a single-process implementation of repository.Store.
//
// Row locks are keyed mutexes held until commit or rollback. Writes are
// staged per transaction and become visible to others only on commit, where
// the unique constraints of the SQL schemas are re-checked.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const defaultLockTimeout = 5 * time.Second

type Store struct {
	mu           sync.RWMutex
	sessions     map[int64]domain.Session
	reservations map[int64]domain.Reservation
	templates    map[int64]domain.CouponTemplate
	issued       map[int64]domain.IssuedCoupon

	sessionSeq     atomic.Int64
	reservationSeq atomic.Int64
	templateSeq    atomic.Int64
	issuedSeq      atomic.Int64

	locks       *lockTable
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long a *ForUpdate call waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[int64]domain.Session),
		reservations: make(map[int64]domain.Reservation),
		templates:    make(map[int64]domain.CouponTemplate),
		issued:       make(map[int64]domain.IssuedCoupon),
		locks:        newLockTable(),
		lockTimeout:  defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Sessions() repository.SessionRepo         { return &sessionRepo{scope{s: s}} }
func (s *Store) Reservations() repository.ReservationRepo { return &reservationRepo{scope{s: s}} }
func (s *Store) Coupons() repository.CouponRepo           { return &couponRepo{scope{s: s}} }

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := s.begin()
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}

func (s *Store) begin() *txn {
	return &txn{
		s:            s,
		held:         make(map[lockKey]struct{}),
		sessions:     make(map[int64]domain.Session),
		reservations: make(map[int64]domain.Reservation),
		templates:    make(map[int64]domain.CouponTemplate),
		issued:       make(map[int64]domain.IssuedCoupon),
		deleted:      make(map[int64]struct{}),
	}
}

type txn struct {
	s    *Store
	held map[lockKey]struct{}

	sessions     map[int64]domain.Session
	reservations map[int64]domain.Reservation
	templates    map[int64]domain.CouponTemplate
	issued       map[int64]domain.IssuedCoupon
	deleted      map[int64]struct{} // issued coupon ids
	done         bool
}

func (t *txn) Sessions() repository.SessionRepo         { return &sessionRepo{scope{s: t.s, t: t}} }
func (t *txn) Reservations() repository.ReservationRepo { return &reservationRepo{scope{s: t.s, t: t}} }
func (t *txn) Coupons() repository.CouponRepo           { return &couponRepo{scope{s: t.s, t: t}} }

func (t *txn) lock(ctx context.Context, k lockKey) error {
	if _, ok := t.held[k]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, k, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[k] = struct{}{}
	return nil
}

func (t *txn) releaseLocks() {
	for k := range t.held {
		t.s.locks.release(k)
	}
	t.held = map[lockKey]struct{}{}
}

func (t *txn) rollback() {
	if t.done {
		return
	}
	t.done = true
	t.releaseLocks()
}

func (t *txn) commit() error {
	const op = "memory.txn.commit"

	if t.done {
		return nil
	}
	t.done = true
	defer t.releaseLocks()

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range t.reservations {
		if r.Status.IsActive() && s.activeDuplicateLocked(t, id, r.SessionID, r.UserID) {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}
	for id, c := range t.issued {
		if c.ReservationID != nil && s.issuedDuplicateLocked(t, id, *c.ReservationID) {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	for id, v := range t.sessions {
		s.sessions[id] = v
	}
	for id, v := range t.reservations {
		s.reservations[id] = v
	}
	for id, v := range t.templates {
		s.templates[id] = v
	}
	for id := range t.deleted {
		delete(s.issued, id)
	}
	for id, v := range t.issued {
		s.issued[id] = v
	}

	return nil
}

// activeDuplicateLocked reports whether another reservation of the same
// (session, user) pair is active in the merged view of t and the store.
func (s *Store) activeDuplicateLocked(t *txn, id, sessionID, userID int64) bool {
	match := func(oid int64, o domain.Reservation) bool {
		return oid != id && o.SessionID == sessionID && o.UserID == userID && o.Status.IsActive()
	}
	for oid, o := range t.reservations {
		if match(oid, o) {
			return true
		}
	}
	for oid, o := range s.reservations {
		if _, staged := t.reservations[oid]; staged {
			continue
		}
		if match(oid, o) {
			return true
		}
	}
	return false
}

func (s *Store) issuedDuplicateLocked(t *txn, id, reservationID int64) bool {
	match := func(oid int64, o domain.IssuedCoupon) bool {
		return oid != id && o.ReservationID != nil && *o.ReservationID == reservationID
	}
	for oid, o := range t.issued {
		if match(oid, o) {
			return true
		}
	}
	for oid, o := range s.issued {
		if _, gone := t.deleted[oid]; gone {
			continue
		}
		if _, staged := t.issued[oid]; staged {
			continue
		}
		if match(oid, o) {
			return true
		}
	}
	return false
}

func (t *txn) session(id int64) (domain.Session, bool) {
	if v, ok := t.sessions[id]; ok {
		return v, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.sessions[id]
	return v, ok
}

func (t *txn) reservation(id int64) (domain.Reservation, bool) {
	if v, ok := t.reservations[id]; ok {
		return v, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.reservations[id]
	return v, ok
}

func (t *txn) template(id int64) (domain.CouponTemplate, bool) {
	if v, ok := t.templates[id]; ok {
		return v, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.templates[id]
	return v, ok
}

func (t *txn) issuedCoupon(id int64) (domain.IssuedCoupon, bool) {
	if _, gone := t.deleted[id]; gone {
		return domain.IssuedCoupon{}, false
	}
	if v, ok := t.issued[id]; ok {
		return v, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.issued[id]
	return v, ok
}

func (t *txn) allSessions() map[int64]domain.Session {
	t.s.mu.RLock()
	out := make(map[int64]domain.Session, len(t.s.sessions)+len(t.sessions))
	for id, v := range t.s.sessions {
		out[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range t.sessions {
		out[id] = v
	}
	return out
}

func (t *txn) allReservations() map[int64]domain.Reservation {
	t.s.mu.RLock()
	out := make(map[int64]domain.Reservation, len(t.s.reservations)+len(t.reservations))
	for id, v := range t.s.reservations {
		out[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range t.reservations {
		out[id] = v
	}
	return out
}

func (t *txn) allTemplates() map[int64]domain.CouponTemplate {
	t.s.mu.RLock()
	out := make(map[int64]domain.CouponTemplate, len(t.s.templates)+len(t.templates))
	for id, v := range t.s.templates {
		out[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range t.templates {
		out[id] = v
	}
	return out
}

func (t *txn) allIssued() map[int64]domain.IssuedCoupon {
	t.s.mu.RLock()
	out := make(map[int64]domain.IssuedCoupon, len(t.s.issued)+len(t.issued))
	for id, v := range t.s.issued {
		out[id] = v
	}
	t.s.mu.RUnlock()
	for id := range t.deleted {
		delete(out, id)
	}
	for id, v := range t.issued {
		out[id] = v
	}
	return out
}

// scope binds a repository either to a transaction or, when t is nil, to
// an implicit single-statement transaction.
type scope struct {
	s *Store
	t *txn
}

func (sc scope) run(fn func(t *txn) error) error {
	if sc.t != nil {
		return fn(sc.t)
	}
	t := sc.s.begin()
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}
