package coupon

import "errors"

var (
	ErrTemplateNotFound = errors.New("coupon template not found")
	ErrInvalidTemplate  = errors.New("invalid coupon template")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCouponUnusable   = errors.New("coupon is used or expired")
	ErrInvalidAmount    = errors.New("amount must be positive")
)
