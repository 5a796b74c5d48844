package domain

import (
	"time"
)

type ReservationStatus string

const (
	StatusHold            ReservationStatus = "HOLD"
	StatusPaid            ReservationStatus = "PAID"
	StatusCancelRequested ReservationStatus = "CANCEL_REQUESTED"
	StatusCanceled        ReservationStatus = "CANCELED"
	StatusExpired         ReservationStatus = "EXPIRED"
	StatusCompleted       ReservationStatus = "COMPLETED"
)

// ActiveStatuses are the statuses that occupy a (session, user) pair.
var ActiveStatuses = []ReservationStatus{StatusHold, StatusPaid, StatusCancelRequested}

var AllStatuses = []ReservationStatus{
	StatusHold,
	StatusPaid,
	StatusCancelRequested,
	StatusCanceled,
	StatusExpired,
	StatusCompleted,
}

func (s ReservationStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s ReservationStatus) IsActive() bool {
	return s == StatusHold || s == StatusPaid || s == StatusCancelRequested
}

func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusExpired || s == StatusCompleted
}

type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

func (d DiscountType) Valid() bool {
	return d == DiscountPercent || d == DiscountFixed
}

type Session struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	Reserved   int       `json:"reserved"`
	PriceCents int       `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Session) Remaining() int {
	if s.Reserved >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Reserved
}

// HasStarted reports whether the session start is not after now.
func (s *Session) HasStarted(now time.Time) bool {
	return !s.StartsAt.After(now)
}

type Reservation struct {
	ID                int64             `json:"id"`
	SessionID         int64             `json:"session_id"`
	UserID            int64             `json:"user_id"`
	Status            ReservationStatus `json:"status"`
	HoldExpiresAt     *time.Time        `json:"hold_expires_at,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	CancelRequestedAt *time.Time        `json:"cancel_requested_at,omitempty"`
	CanceledAt        *time.Time        `json:"canceled_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
	PaymentRef        string            `json:"payment_ref,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type CouponTemplate struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int          `json:"discount_value"`
	ValidDays     int          `json:"valid_days"`
	Active        bool         `json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
}

type IssuedCoupon struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	TemplateID    int64           `json:"template_id"`
	ReservationID *int64          `json:"reservation_id,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	UsedAt        *time.Time      `json:"used_at,omitempty"`
	Template      *CouponTemplate `json:"template,omitempty"`
}
