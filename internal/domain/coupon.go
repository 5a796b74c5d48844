package domain

import "time"

// IsUsable reports whether the coupon is unused and not yet expired.
func (c *IssuedCoupon) IsUsable(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}

// NewIssuedCoupon builds a wallet entry valid for the template's window.
func NewIssuedCoupon(userID int64, t *CouponTemplate, reservationID *int64, now time.Time) *IssuedCoupon {
	return &IssuedCoupon{
		UserID:        userID,
		TemplateID:    t.ID,
		ReservationID: reservationID,
		IssuedAt:      now,
		ExpiresAt:     now.AddDate(0, 0, t.ValidDays),
	}
}

// Apply returns amountCents after the template's discount, never below zero.
func (t *CouponTemplate) Apply(amountCents int) int {
	var out int
	switch t.DiscountType {
	case DiscountPercent:
		pct := t.DiscountValue
		if pct > 100 {
			pct = 100
		}
		out = amountCents * (100 - pct) / 100
	case DiscountFixed:
		out = amountCents - t.DiscountValue
	default:
		out = amountCents
	}
	if out < 0 {
		return 0
	}
	return out
}
