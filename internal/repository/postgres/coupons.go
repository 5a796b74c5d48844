package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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

func scanTemplate(row pgx.Row) (*domain.CouponTemplate, error) {
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

func scanIssuedWithTemplate(row pgx.Row) (*domain.IssuedCoupon, error) {
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
	const op = "postgres.CouponRepo.CreateTemplate"

	var id int64
	if err := r.db.QueryRow(ctx,
		`INSERT INTO coupon_templates(name, discount_type, discount_value, valid_days, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		t.Name, string(t.DiscountType), t.DiscountValue, t.ValidDays, t.Active,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CouponRepo) GetTemplate(ctx context.Context, id int64) (*domain.CouponTemplate, error) {
	const op = "postgres.CouponRepo.GetTemplate"

	t, err := scanTemplate(r.db.QueryRow(ctx,
		`SELECT `+templateCols+` FROM coupon_templates WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *CouponRepo) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	const op = "postgres.CouponRepo.SetTemplateActive"

	tag, err := r.db.Exec(ctx,
		`UPDATE coupon_templates SET active = $2 WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *CouponRepo) ListTemplates(ctx context.Context) ([]domain.CouponTemplate, error) {
	const op = "postgres.CouponRepo.ListTemplates"

	rows, err := r.db.Query(ctx, `SELECT `+templateCols+` FROM coupon_templates ORDER BY id`)
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
	const op = "postgres.CouponRepo.FirstActiveTemplate"

	t, err := scanTemplate(r.db.QueryRow(ctx,
		`SELECT `+templateCols+`
		 FROM coupon_templates
		 WHERE active
		 ORDER BY id
		 LIMIT 1`,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *CouponRepo) IssuedByReservation(ctx context.Context, reservationID int64) (*domain.IssuedCoupon, error) {
	const op = "postgres.CouponRepo.IssuedByReservation"

	c, err := scanIssuedWithTemplate(r.db.QueryRow(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.reservation_id = $1`,
		reservationID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

// Issue inserts c. A coupon already tied to c.ReservationID leaves the
// table untouched and yields ErrConflict without aborting the transaction.
func (r *CouponRepo) Issue(ctx context.Context, c *domain.IssuedCoupon) (int64, error) {
	const op = "postgres.CouponRepo.Issue"

	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO issued_coupons(user_id, template_id, reservation_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (reservation_id) DO NOTHING
		 RETURNING id`,
		c.UserID, c.TemplateID, c.ReservationID, c.IssuedAt, c.ExpiresAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CouponRepo) GetIssuedForUpdate(ctx context.Context, id int64) (*domain.IssuedCoupon, error) {
	const op = "postgres.CouponRepo.GetIssuedForUpdate"

	c, err := scanIssuedWithTemplate(r.db.QueryRow(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.id = $1
		 FOR UPDATE OF c`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

func (r *CouponRepo) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	const op = "postgres.CouponRepo.MarkUsed"

	tag, err := r.db.Exec(ctx,
		`UPDATE issued_coupons SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, at,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM issued_coupons WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return wrapDBErr(op, err)
	}
	if !exists {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrConflict)
}

func (r *CouponRepo) ListUsableByUser(ctx context.Context, userID int64, now time.Time) ([]domain.IssuedCoupon, error) {
	const op = "postgres.CouponRepo.ListUsableByUser"

	rows, err := r.db.Query(ctx,
		`SELECT `+issuedWithTemplateCols+`
		 FROM issued_coupons c
		 JOIN coupon_templates t ON t.id = c.template_id
		 WHERE c.user_id = $1 AND c.used_at IS NULL AND c.expires_at > $2
		 ORDER BY c.issued_at DESC, c.id DESC`,
		userID, now,
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
	const op = "postgres.CouponRepo.DeleteUnusableByUser"

	tag, err := r.db.Exec(ctx,
		`DELETE FROM issued_coupons
		 WHERE user_id = $1 AND (used_at IS NOT NULL OR expires_at <= $2)`,
		userID, now,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
