package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

type couponRepo struct {
	scope
}

func (r *couponRepo) CreateTemplate(ctx context.Context, tpl *domain.CouponTemplate) (int64, error) {
	const op = "memory.CouponRepo.CreateTemplate"

	id := r.s.templateSeq.Add(1)
	err := r.run(func(t *txn) error {
		v := *tpl
		v.ID = id
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		t.templates[id] = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (r *couponRepo) GetTemplate(ctx context.Context, id int64) (*domain.CouponTemplate, error) {
	const op = "memory.CouponRepo.GetTemplate"

	var out domain.CouponTemplate
	err := r.run(func(t *txn) error {
		v, ok := t.template(id)
		if !ok {
			return repository.ErrNotFound
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

func (r *couponRepo) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	const op = "memory.CouponRepo.SetTemplateActive"

	err := r.run(func(t *txn) error {
		v, ok := t.template(id)
		if !ok {
			return repository.ErrNotFound
		}
		v.Active = active
		t.templates[id] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *couponRepo) ListTemplates(ctx context.Context) ([]domain.CouponTemplate, error) {
	var out []domain.CouponTemplate
	_ = r.run(func(t *txn) error {
		for _, v := range t.allTemplates() {
			out = append(out, v)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *couponRepo) FirstActiveTemplate(ctx context.Context) (*domain.CouponTemplate, error) {
	const op = "memory.CouponRepo.FirstActiveTemplate"

	var (
		out   domain.CouponTemplate
		found bool
	)
	_ = r.run(func(t *txn) error {
		for id, v := range t.allTemplates() {
			if v.Active && (!found || id < out.ID) {
				out, found = v, true
			}
		}
		return nil
	})
	if !found {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &out, nil
}

func (r *couponRepo) IssuedByReservation(ctx context.Context, reservationID int64) (*domain.IssuedCoupon, error) {
	const op = "memory.CouponRepo.IssuedByReservation"

	var (
		out   domain.IssuedCoupon
		found bool
	)
	_ = r.run(func(t *txn) error {
		for _, v := range t.allIssued() {
			if v.ReservationID != nil && *v.ReservationID == reservationID {
				out, found = v, true
				return nil
			}
		}
		return nil
	})
	if !found {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &out, nil
}

func (r *couponRepo) Issue(ctx context.Context, c *domain.IssuedCoupon) (int64, error) {
	const op = "memory.CouponRepo.Issue"

	id := r.s.issuedSeq.Add(1)
	err := r.run(func(t *txn) error {
		if _, ok := t.template(c.TemplateID); !ok {
			return repository.ErrNotFound
		}
		if c.ReservationID != nil {
			for _, v := range t.allIssued() {
				if v.ReservationID != nil && *v.ReservationID == *c.ReservationID {
					return repository.ErrConflict
				}
			}
		}
		v := *c
		v.ID = id
		v.Template = nil
		t.issued[id] = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (r *couponRepo) GetIssuedForUpdate(ctx context.Context, id int64) (*domain.IssuedCoupon, error) {
	const op = "memory.CouponRepo.GetIssuedForUpdate"

	var out domain.IssuedCoupon
	err := r.run(func(t *txn) error {
		if err := t.lock(ctx, lockKey{lockIssuedCoupon, id}); err != nil {
			return err
		}
		v, ok := t.issuedCoupon(id)
		if !ok {
			return repository.ErrNotFound
		}
		if tpl, ok := t.template(v.TemplateID); ok {
			v.Template = &tpl
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

func (r *couponRepo) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	const op = "memory.CouponRepo.MarkUsed"

	err := r.run(func(t *txn) error {
		v, ok := t.issuedCoupon(id)
		if !ok {
			return repository.ErrNotFound
		}
		if v.UsedAt != nil {
			return repository.ErrConflict
		}
		v.UsedAt = &at
		t.issued[id] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *couponRepo) ListUsableByUser(ctx context.Context, userID int64, now time.Time) ([]domain.IssuedCoupon, error) {
	var out []domain.IssuedCoupon
	_ = r.run(func(t *txn) error {
		templates := t.allTemplates()
		for _, v := range t.allIssued() {
			if v.UserID != userID || !v.IsUsable(now) {
				continue
			}
			if tpl, ok := templates[v.TemplateID]; ok {
				v.Template = &tpl
			}
			out = append(out, v)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

func (r *couponRepo) DeleteUnusableByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	var n int64
	_ = r.run(func(t *txn) error {
		for id, v := range t.allIssued() {
			if v.UserID != userID || v.IsUsable(now) {
				continue
			}
			delete(t.issued, id)
			t.deleted[id] = struct{}{}
			n++
		}
		return nil
	})

	return n, nil
}
