package postgres

import (
	"context"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const sessionCols = `id, title, starts_at, capacity, reserved, price_cents, created_at`

type SessionRepo struct {
	db DB
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "postgres.SessionRepo.Create"

	var id int64
	if err := r.db.QueryRow(ctx,
		`INSERT INTO sessions(title, starts_at, capacity, reserved, price_cents)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.Title, s.StartsAt, s.Capacity, s.Reserved, s.PriceCents,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *SessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgres.SessionRepo.Get"

	var s domain.Session
	if err := r.db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Title, &s.StartsAt, &s.Capacity, &s.Reserved, &s.PriceCents, &s.CreatedAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgres.SessionRepo.GetForUpdate"

	var s domain.Session
	if err := r.db.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&s.ID, &s.Title, &s.StartsAt, &s.Capacity, &s.Reserved, &s.PriceCents, &s.CreatedAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

// SetReserved relies on the sessions_reserved_range check to refuse values
// outside [0, capacity].
func (r *SessionRepo) SetReserved(ctx context.Context, id int64, reserved int) error {
	const op = "postgres.SessionRepo.SetReserved"

	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET reserved = $2 WHERE id = $1`,
		id, reserved,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
