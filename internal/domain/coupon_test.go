package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIssuedCouponUsability(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tmpl := &CouponTemplate{ID: 3, ValidDays: 7}
	rid := int64(11)

	c := NewIssuedCoupon(5, tmpl, &rid, now)
	assert.Equal(t, now.Add(7*24*time.Hour), c.ExpiresAt)
	assert.True(t, c.IsUsable(now))
	assert.False(t, c.IsUsable(c.ExpiresAt), "expiry instant is exclusive")

	used := now.Add(time.Hour)
	c.UsedAt = &used
	assert.False(t, c.IsUsable(now))
}

func TestTemplateApply(t *testing.T) {
	cases := []struct {
		name string
		tmpl CouponTemplate
		in   int
		want int
	}{
		{"percent", CouponTemplate{DiscountType: DiscountPercent, DiscountValue: 10}, 50000, 45000},
		{"percent over 100", CouponTemplate{DiscountType: DiscountPercent, DiscountValue: 150}, 50000, 0},
		{"fixed", CouponTemplate{DiscountType: DiscountFixed, DiscountValue: 3000}, 50000, 47000},
		{"fixed floors at zero", CouponTemplate{DiscountType: DiscountFixed, DiscountValue: 9000}, 5000, 0},
		{"unknown type", CouponTemplate{DiscountType: "BOGUS", DiscountValue: 10}, 100, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tmpl.Apply(tc.in))
		})
	}
}
