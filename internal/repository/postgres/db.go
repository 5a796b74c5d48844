package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/oneday/internal/repository"
)

// DB is satisfied by both *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ repository.Store = (*Store)(nil)

// NewStore returns a Store whose transactions wait at most lockTimeout for a
// row lock. Zero leaves the server default in place.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{
		pool:        pool,
		lockTimeout: lockTimeout,
	}
}

// RunTx runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE serialize writers; a waiter reads the committed
// row once the holder finishes.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	const op = "postgres.Store.RunTx"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx,
			`SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds()),
		); err != nil {
			return wrapDBErr(op, err)
		}
	}

	if err := fn(ctx, txScope{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (s *Store) Sessions() repository.SessionRepo         { return &SessionRepo{db: s.pool} }
func (s *Store) Reservations() repository.ReservationRepo { return &ReservationRepo{db: s.pool} }
func (s *Store) Coupons() repository.CouponRepo           { return &CouponRepo{db: s.pool} }

type txScope struct {
	db DB
}

func (t txScope) Sessions() repository.SessionRepo         { return &SessionRepo{db: t.db} }
func (t txScope) Reservations() repository.ReservationRepo { return &ReservationRepo{db: t.db} }
func (t txScope) Coupons() repository.CouponRepo           { return &CouponRepo{db: t.db} }

// noLimit turns a non-positive limit into SQL NULL, which LIMIT treats as
// unbounded.
func noLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
