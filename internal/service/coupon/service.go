// Package coupon is the reward catalog and the per-user wallet.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/oneday/internal/clock"
	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
	"github.com/kirinyoku/oneday/internal/uow"
)

// Default reward granted on class completion when no template is active.
const (
	DefaultTemplateName      = "One-day class completion reward"
	DefaultTemplateValue     = 10
	DefaultTemplateValidDays = 7
)

type Service struct {
	store repository.Store
	uow   *uow.UoW
	clock clock.Clock
}

func New(store repository.Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		store: store,
		uow:   uow.NewUoW(store),
		clock: clk,
	}
}

// ActiveTemplate returns the active template with the lowest id, or nil
// when no template is active.
func ActiveTemplate(ctx context.Context, coupons repository.CouponRepo) (*domain.CouponTemplate, error) {
	const op = "coupon.ActiveTemplate"

	tpl, err := coupons.FirstActiveTemplate(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tpl, nil
}

// Issue grants tpl to userID for the given reservation. It is idempotent
// per reservation: when a coupon already exists for reservationID that
// coupon is returned and created is false.
//
// Parameters:
//   - ctx: request-scoped context.
//   - coupons: repository bound to the caller's transaction.
//   - userID: owner of the new wallet entry.
//   - tpl: template to issue from.
//   - reservationID: originating reservation, or nil for a manual grant.
//
// Returns:
//   - *domain.IssuedCoupon: the new or already existing coupon.
//   - bool: whether a coupon was created by this call.
//   - error: coupon.ErrTemplateNotFound if tpl does not exist.
func Issue(
	ctx context.Context,
	coupons repository.CouponRepo,
	userID int64,
	tpl *domain.CouponTemplate,
	reservationID *int64,
	now time.Time,
) (*domain.IssuedCoupon, bool, error) {
	const op = "coupon.Issue"

	if reservationID != nil {
		existing, err := coupons.IssuedByReservation(ctx, *reservationID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("%s:%w", op, err)
		}
	}

	c := domain.NewIssuedCoupon(userID, tpl, reservationID, now)
	id, err := coupons.Issue(ctx, c)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict) && reservationID != nil:
			// another issuer won the unique constraint
			existing, rerr := coupons.IssuedByReservation(ctx, *reservationID)
			if rerr != nil {
				return nil, false, fmt.Errorf("%s:%w", op, rerr)
			}
			return existing, false, nil
		case errors.Is(err, repository.ErrNotFound):
			return nil, false, fmt.Errorf("%s:%w", op, ErrTemplateNotFound)
		default:
			return nil, false, fmt.Errorf("%s:%w", op, err)
		}
	}
	c.ID = id
	c.Template = tpl

	return c, true, nil
}

// ActiveTemplate returns the currently active reward template, or nil.
func (s *Service) ActiveTemplate(ctx context.Context) (*domain.CouponTemplate, error) {
	return ActiveTemplate(ctx, s.store.Coupons())
}

// MyCoupons purges the user's used or expired coupons and returns the
// usable ones, newest first.
func (s *Service) MyCoupons(ctx context.Context, userID int64) ([]domain.IssuedCoupon, error) {
	const op = "service.coupon.MyCoupons"

	now := s.clock.Now()

	var out []domain.IssuedCoupon
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		if _, err := tx.Coupons().DeleteUnusableByUser(ctx, userID, now); err != nil {
			return err
		}

		list, err := tx.Coupons().ListUsableByUser(ctx, userID, now)
		if err != nil {
			return err
		}
		out = list

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

type Redemption struct {
	Coupon          *domain.IssuedCoupon `json:"coupon"`
	AmountCents     int                  `json:"amount_cents"`
	DiscountedCents int                  `json:"discounted_cents"`
}

// Redeem marks the user's coupon used and returns the discounted amount.
//
// Returns:
//   - error: coupon.ErrCouponNotFound if the coupon does not exist or
//     belongs to someone else.
//   - error: coupon.ErrCouponUnusable if it is already used or expired.
func (s *Service) Redeem(ctx context.Context, userID, couponID int64, amountCents int) (*Redemption, error) {
	const op = "service.coupon.Redeem"

	if amountCents <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidAmount)
	}

	var out *Redemption
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		c, err := tx.Coupons().GetIssuedForUpdate(ctx, couponID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCouponNotFound
			}
			return err
		}
		if c.UserID != userID {
			return ErrCouponNotFound
		}

		now := s.clock.Now()
		if !c.IsUsable(now) {
			return ErrCouponUnusable
		}

		if err := tx.Coupons().MarkUsed(ctx, c.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrCouponUnusable
			}
			return err
		}
		c.UsedAt = &now

		discounted := amountCents
		if c.Template != nil {
			discounted = c.Template.Apply(amountCents)
		}

		out = &Redemption{Coupon: c, AmountCents: amountCents, DiscountedCents: discounted}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

type TemplateInput struct {
	Name          string
	DiscountType  domain.DiscountType
	DiscountValue int
	ValidDays     int
	Active        bool
}

func (in TemplateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case !in.DiscountType.Valid():
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidTemplate, in.DiscountType)
	case in.DiscountValue <= 0:
		return fmt.Errorf("%w: discount value must be positive", ErrInvalidTemplate)
	case in.DiscountType == domain.DiscountPercent && in.DiscountValue > 100:
		return fmt.Errorf("%w: percent discount above 100", ErrInvalidTemplate)
	case in.ValidDays <= 0:
		return fmt.Errorf("%w: valid days must be positive", ErrInvalidTemplate)
	}
	return nil
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*domain.CouponTemplate, error) {
	const op = "service.coupon.CreateTemplate"

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	tpl := &domain.CouponTemplate{
		Name:          strings.TrimSpace(in.Name),
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		ValidDays:     in.ValidDays,
		Active:        in.Active,
		CreatedAt:     s.clock.Now(),
	}

	id, err := s.store.Coupons().CreateTemplate(ctx, tpl)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	tpl.ID = id

	return tpl, nil
}

// SetTemplateActive flips the active flag. Templates are never deleted
// since issued coupons keep referencing them.
func (s *Service) SetTemplateActive(ctx context.Context, id int64, active bool) (*domain.CouponTemplate, error) {
	const op = "service.coupon.SetTemplateActive"

	var out *domain.CouponTemplate
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		if err := tx.Coupons().SetTemplateActive(ctx, id, active); err != nil {
			return err
		}

		tpl, err := tx.Coupons().GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		out = tpl

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrTemplateNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]domain.CouponTemplate, error) {
	const op = "service.coupon.ListTemplates"

	list, err := s.store.Coupons().ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return list, nil
}

// SeedDefault makes sure a reward template is active, creating the
// default one when none is. created reports whether it was inserted.
func (s *Service) SeedDefault(ctx context.Context) (tpl *domain.CouponTemplate, created bool, err error) {
	const op = "service.coupon.SeedDefault"

	active, err := s.ActiveTemplate(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}
	if active != nil {
		return active, false, nil
	}

	tpl, err = s.CreateTemplate(ctx, TemplateInput{
		Name:          DefaultTemplateName,
		DiscountType:  domain.DiscountPercent,
		DiscountValue: DefaultTemplateValue,
		ValidDays:     DefaultTemplateValidDays,
		Active:        true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return tpl, true, nil
}
