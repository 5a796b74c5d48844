package httpgin

import (
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
)

type CreateHoldRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
	// TTLSec is the requested hold duration; zero means the default.
	TTLSec int `json:"ttl_sec" binding:"gte=0"`
}

type ConfirmPaymentRequest struct {
	PaymentRef string `json:"payment_ref" binding:"max=128"`
}

type RequestCancellationRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"max=500"`
}

type CreateSessionRequest struct {
	Title      string `json:"title" binding:"required"`
	StartsAt   string `json:"starts_at" binding:"required"`
	Capacity   int    `json:"capacity" binding:"required,gt=0"`
	PriceCents int    `json:"price_cents" binding:"gte=0"`
}

type CreateTemplateRequest struct {
	Name          string              `json:"name" binding:"required"`
	DiscountType  domain.DiscountType `json:"discount_type" binding:"required,oneof=PERCENT FIXED"`
	DiscountValue int                 `json:"discount_value" binding:"required,gt=0"`
	ValidDays     int                 `json:"valid_days" binding:"required,gt=0"`
	// Active defaults to true when omitted.
	Active *bool `json:"active"`
}

type SetTemplateActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type RedeemCouponRequest struct {
	AmountCents int `json:"amount_cents" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SweepResponse struct {
	Sweeper string `json:"sweeper"`
	Count   int    `json:"count"`
	// Shared is true when the trigger joined a run already in progress.
	Shared bool `json:"shared"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
