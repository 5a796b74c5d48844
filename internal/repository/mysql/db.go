// Package mysql implements repository.Store on InnoDB.
//
// Row locks come from SELECT ... FOR UPDATE at READ COMMITTED. The one
// active reservation per (session, user) rule is carried by a stored
// generated column with a UNIQUE key, since MySQL has no partial indexes.
package mysql

import (
	"context"
	"database/sql"
	"math"

	"github.com/kirinyoku/oneday/internal/repository"
)

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	const op = "mysql.Store.RunTx"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return wrapDBErr(op, err)
	}

	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, txScope{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (s *Store) Sessions() repository.SessionRepo         { return &SessionRepo{db: s.db} }
func (s *Store) Reservations() repository.ReservationRepo { return &ReservationRepo{db: s.db} }
func (s *Store) Coupons() repository.CouponRepo           { return &CouponRepo{db: s.db} }

type txScope struct {
	db DB
}

func (t txScope) Sessions() repository.SessionRepo         { return &SessionRepo{db: t.db} }
func (t txScope) Reservations() repository.ReservationRepo { return &ReservationRepo{db: t.db} }
func (t txScope) Coupons() repository.CouponRepo           { return &CouponRepo{db: t.db} }

func rowLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}
