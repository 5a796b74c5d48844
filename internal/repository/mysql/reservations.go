package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const reservationCols = `id, session_id, user_id, status, hold_expires_at, paid_at,
	cancel_requested_at, canceled_at, completed_at, cancel_reason, payment_ref,
	created_at, updated_at`

type ReservationRepo struct {
	db DB
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (*domain.Reservation, error) {
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

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
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

func (r *ReservationRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) (int64, error) {
	const op = "mysql.ReservationRepo.Create"

	out, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations(session_id, user_id, status, hold_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.UserID, string(res.Status), utcPtr(res.HoldExpiresAt),
		res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	id, err := out.LastInsertId()
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *ReservationRepo) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "mysql.ReservationRepo.Get"

	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "mysql.ReservationRepo.GetForUpdate"

	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) FindActiveForUpdate(ctx context.Context, sessionID, userID int64) ([]domain.Reservation, error) {
	return r.list(ctx, "mysql.ReservationRepo.FindActiveForUpdate",
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE session_id = ? AND user_id = ?
		   AND status IN ('HOLD', 'PAID', 'CANCEL_REQUESTED')
		 ORDER BY id
		 FOR UPDATE`,
		sessionID, userID,
	)
}

func (r *ReservationRepo) Update(ctx context.Context, res *domain.Reservation) error {
	const op = "mysql.ReservationRepo.Update"

	out, err := r.db.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?,
		     hold_expires_at = ?,
		     paid_at = ?,
		     cancel_requested_at = ?,
		     canceled_at = ?,
		     completed_at = ?,
		     cancel_reason = ?,
		     payment_ref = ?,
		     updated_at = ?
		 WHERE id = ?`,
		string(res.Status),
		utcPtr(res.HoldExpiresAt),
		utcPtr(res.PaidAt),
		utcPtr(res.CancelRequestedAt),
		utcPtr(res.CanceledAt),
		utcPtr(res.CompletedAt),
		res.CancelReason,
		res.PaymentRef,
		res.UpdatedAt.UTC(),
		res.ID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	n, err := out.RowsAffected()
	if err != nil {
		return wrapDBErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *ReservationRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return r.list(ctx, "mysql.ReservationRepo.ListExpiredHolds",
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE status = 'HOLD' AND hold_expires_at < ?
		 ORDER BY hold_expires_at, id
		 LIMIT ?`,
		now.UTC(), rowLimit(limit),
	)
}

func (r *ReservationRepo) ListPaidStarted(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return r.list(ctx, "mysql.ReservationRepo.ListPaidStarted",
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE status = 'PAID'
		   AND session_id IN (SELECT id FROM sessions WHERE starts_at < ?)
		 ORDER BY id
		 LIMIT ?`,
		now.UTC(), rowLimit(limit),
	)
}

func (r *ReservationRepo) ListByUser(ctx context.Context, userID int64, status domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "mysql.ReservationRepo.ListByUser",
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE user_id = ? AND (? = '' OR status = ?)
		 ORDER BY created_at DESC, id DESC`,
		userID, string(status), string(status),
	)
}

func (r *ReservationRepo) ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error) {
	return r.list(ctx, "mysql.ReservationRepo.ListByStatus",
		`SELECT `+reservationCols+`
		 FROM reservations
		 WHERE (? = '' OR status = ?)
		 ORDER BY created_at DESC, id DESC`,
		string(status), string(status),
	)
}
