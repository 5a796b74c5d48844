package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const reservationCols = `id, session_id, user_id, status, hold_expires_at, paid_at,
	cancel_requested_at, canceled_at, completed_at, cancel_reason, payment_ref,
	created_at, updated_at`

type ReservationRepo struct {
	db DB
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		r      domain.Reservation
		status string
	)

	if err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.UserID,
		&status,
		&r.HoldExpiresAt,
		&r.PaidAt,
		&r.CancelRequestedAt,
		&r.CanceledAt,
		&r.CompletedAt,
		&r.CancelReason,
		&r.PaymentRef,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Status = domain.ReservationStatus(status)

	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}

	return out, rows.Err()
}

func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) (int64, error) {
	const op = "postgres.ReservationRepo.Create"

	var id int64
	if err := r.db.QueryRow(ctx,
		`INSERT INTO reservations(session_id, user_id, status, hold_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		res.SessionID, res.UserID, string(res.Status), res.HoldExpiresAt, res.CreatedAt, res.UpdatedAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *ReservationRepo) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"

	res, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.GetForUpdate"

	res, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) FindActiveForUpdate(ctx context.Context, sessionID, userID int64) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.FindActiveForUpdate"

	rows, err := r.db.Query(ctx,
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE session_id = $1 AND user_id = $2
		   AND status IN ('HOLD', 'PAID', 'CANCEL_REQUESTED')
		 ORDER BY id
		 FOR UPDATE`,
		sessionID, userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ReservationRepo) Update(ctx context.Context, res *domain.Reservation) error {
	const op = "postgres.ReservationRepo.Update"

	tag, err := r.db.Exec(ctx,
		`UPDATE reservations
		 SET status = $2,
		     hold_expires_at = $3,
		     paid_at = $4,
		     cancel_requested_at = $5,
		     canceled_at = $6,
		     completed_at = $7,
		     cancel_reason = $8,
		     payment_ref = $9,
		     updated_at = $10
		 WHERE id = $1`,
		res.ID,
		string(res.Status),
		res.HoldExpiresAt,
		res.PaidAt,
		res.CancelRequestedAt,
		res.CanceledAt,
		res.CompletedAt,
		res.CancelReason,
		res.PaymentRef,
		res.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ReservationRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListExpiredHolds"

	rows, err := r.db.Query(ctx,
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE status = 'HOLD' AND hold_expires_at < $1
		 ORDER BY hold_expires_at, id
		 LIMIT $2`,
		now, noLimit(limit),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ReservationRepo) ListPaidStarted(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListPaidStarted"

	rows, err := r.db.Query(ctx,
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE status = 'PAID'
		   AND session_id IN (SELECT id FROM sessions WHERE starts_at < $1)
		 ORDER BY id
		 LIMIT $2`,
		now, noLimit(limit),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ReservationRepo) ListByUser(ctx context.Context, userID int64, status domain.ReservationStatus) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListByUser"

	rows, err := r.db.Query(ctx,
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		 ORDER BY created_at DESC, id DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ReservationRepo) ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListByStatus"

	rows, err := r.db.Query(ctx,
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE ($1::text = '' OR status = $1::text)
		 ORDER BY created_at DESC, id DESC`,
		string(status),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
