package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

const (
	templateCols = `id, name, discount_type, discount_value, valid_days, active, created_at`

	issuedWithTemplateCols = `c.id, c.user_id, c.template_id, c.reservation_id, c.issued_at, c.expires_at, c.used_at,
		t.id, t.name, t.discount_type, t.discount_value, t.valid_days, t.active, t.created_at`
)

type CouponRepo struct {
	db DB
}

func scanTemplate(row scanner) (*domain.CouponTemplate, error) {
	var (
		t  domain.CouponTemplate
		dt string
	)

	if err := row.Scan(&t.ID, &t.Name, &dt, &t.DiscountValue, &t.ValidDays, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.DiscountType = domain.DiscountType(dt)

	return &t, nil
}

func scanIssuedWithTemplate(row scanner) (*domain.IssuedCoupon, error) {
	var (
		c  domain.IssuedCoupon
		t  domain.CouponTemplate
		dt string
	)

	if err := row.Scan(
		&c.ID, &c.UserID, &c.TemplateID, &c.ReservationID, &c.IssuedAt, &c.ExpiresAt, &c.UsedAt,
		&t.ID, &t.Name, &dt, &t.DiscountValue, &t.ValidDays, &t.Active, &t.CreatedAt,
	); err != nil {
		return nil, err
	}

	t.DiscountType = domain.DiscountType(dt)
	c.Template = &t

	return &c, nil
}

func (r *CouponRepo) CreateTemplate(ctx context.Context, t *domain.CouponTemplate) (int64, error) {
	const op = "mysql.CouponRepo.CreateTemplate"

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO coupon_templates(name, discount_type, discount_value, valid_days, active)
		 VALUES (?, ?, ?, ?, ?)`,
		t.Name, string(t.DiscountType), t.DiscountValue, t.ValidDays, t.Active,
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

func (r *CouponRepo) GetTemplate(ctx context.Context, id int64) (*domain.CouponTemplate, error) {
	const op = "mysql.CouponRepo.GetTemplate"

	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateCols+` FROM coupon_templates WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *CouponRepo) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	const op = "mysql.CouponRepo.SetTemplateActive"

	res, err := r.db.ExecContext(ctx,
		`UPDATE coupon_templates SET active = ? WHERE id = ?`, active, id)
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

func (r *CouponRepo) ListTemplates(ctx context.Context) ([]domain.CouponTemplate, error) {
	const op = "mysql.CouponRepo.ListTemplates"

	rows, err := r.db.QueryContext(ctx, `SELECT `+templateCols+` FROM coupon_templates ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.CouponTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CouponRepo) FirstActiveTemplate(ctx context.Context) (*domain.CouponTemplate, error) {
	const op = "mysql.CouponRepo.FirstActiveTemplate"

	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateCols+` FROM coupon_templates WHERE active ORDER BY id LIMIT 1`))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *CouponRepo) IssuedByReservation(ctx context.Context, reservationID int64) (*domain.IssuedCoupon, error) {
	const op = "mysql.CouponRepo.IssuedByReservation"

	c, err := scanIssuedWithTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.reservation_id = ?`,
		reservationID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

// Issue relies on the issued_coupons_reservation key; InnoDB rolls back only
// the failed statement, so the surrounding transaction stays usable.
func (r *CouponRepo) Issue(ctx context.Context, c *domain.IssuedCoupon) (int64, error) {
	const op = "mysql.CouponRepo.Issue"

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO issued_coupons(user_id, template_id, reservation_id, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.UserID, c.TemplateID, c.ReservationID, c.IssuedAt.UTC(), c.ExpiresAt.UTC(),
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

func (r *CouponRepo) GetIssuedForUpdate(ctx context.Context, id int64) (*domain.IssuedCoupon, error) {
	const op = "mysql.CouponRepo.GetIssuedForUpdate"

	c, err := scanIssuedWithTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.id = ?
		 FOR UPDATE OF c`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

func (r *CouponRepo) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	const op = "mysql.CouponRepo.MarkUsed"

	res, err := r.db.ExecContext(ctx,
		`UPDATE issued_coupons SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(op, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM issued_coupons WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return wrapDBErr(op, err)
	}
	if !exists {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *CouponRepo) ListUsableByUser(ctx context.Context, userID int64, now time.Time) ([]domain.IssuedCoupon, error) {
	const op = "mysql.CouponRepo.ListUsableByUser"

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.user_id = ? AND c.used_at IS NULL AND c.expires_at > ?
		 ORDER BY c.issued_at DESC, c.id DESC`,
		userID, now.UTC(),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.IssuedCoupon
	for rows.Next() {
		c, err := scanIssuedWithTemplate(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *CouponRepo) DeleteUnusableByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	const op = "mysql.CouponRepo.DeleteUnusableByUser"

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM issued_coupons
		 WHERE user_id = ? AND (used_at IS NOT NULL OR expires_at <= ?)`,
		userID, now.UTC(),
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}
