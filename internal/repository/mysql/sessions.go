package mysql

import (
	"context"
	"fmt"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const sessionCols = `id, title, starts_at, capacity, reserved, price_cents, created_at`

type SessionRepo struct {
	db DB
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "mysql.SessionRepo.Create"

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions(title, starts_at, capacity, reserved, price_cents)
		 VALUES (?, ?, ?, ?, ?)`,
		s.Title, s.StartsAt.UTC(), s.Capacity, s.Reserved, s.PriceCents,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *SessionRepo) get(ctx context.Context, op, query string, id int64) (*domain.Session, error) {
	var s domain.Session
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Title, &s.StartsAt, &s.Capacity, &s.Reserved, &s.PriceCents, &s.CreatedAt,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *SessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	return r.get(ctx, "mysql.SessionRepo.Get",
		`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Session, error) {
	return r.get(ctx, "mysql.SessionRepo.GetForUpdate",
		`SELECT `+sessionCols+` FROM sessions WHERE id = ? FOR UPDATE`, id)
}

func (r *SessionRepo) SetReserved(ctx context.Context, id int64, reserved int) error {
	const op = "mysql.SessionRepo.SetReserved"

	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET reserved = ? WHERE id = ?`,
		reserved, id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
