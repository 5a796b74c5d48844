// Package repository declares the storage contract shared by the postgres,
// mysql and in-memory backends.
//
// Every *ForUpdate method takes an exclusive lock on one row that is held
// until the surrounding transaction ends. Callers that lock both a session
// and a reservation must lock the session first.
package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
)

type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Session, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Session, error)
	SetReserved(ctx context.Context, id int64, reserved int) error
}

type ReservationRepo interface {
	Create(ctx context.Context, r *domain.Reservation) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Reservation, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error)
	// FindActiveForUpdate locks and returns the reservations of userID for
	// sessionID whose status is one of domain.ActiveStatuses.
	FindActiveForUpdate(ctx context.Context, sessionID, userID int64) ([]domain.Reservation, error)
	Update(ctx context.Context, r *domain.Reservation) error
	// ListExpiredHolds returns HOLD rows whose deadline is before now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	// ListPaidStarted returns PAID rows whose session started before now.
	ListPaidStarted(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	// ListByUser returns the user's reservations newest first. An empty
	// status matches every status.
	ListByUser(ctx context.Context, userID int64, status domain.ReservationStatus) ([]domain.Reservation, error)
	ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error)
}

type CouponRepo interface {
	CreateTemplate(ctx context.Context, t *domain.CouponTemplate) (int64, error)
	GetTemplate(ctx context.Context, id int64) (*domain.CouponTemplate, error)
	SetTemplateActive(ctx context.Context, id int64, active bool) error
	ListTemplates(ctx context.Context) ([]domain.CouponTemplate, error)
	// FirstActiveTemplate returns the active template with the lowest id, or
	// ErrNotFound.
	FirstActiveTemplate(ctx context.Context) (*domain.CouponTemplate, error)

	IssuedByReservation(ctx context.Context, reservationID int64) (*domain.IssuedCoupon, error)
	// Issue stores c. It returns ErrConflict when c.ReservationID already has
	// a coupon.
	Issue(ctx context.Context, c *domain.IssuedCoupon) (int64, error)
	GetIssuedForUpdate(ctx context.Context, id int64) (*domain.IssuedCoupon, error)
	MarkUsed(ctx context.Context, id int64, at time.Time) error
	ListUsableByUser(ctx context.Context, userID int64, now time.Time) ([]domain.IssuedCoupon, error)
	DeleteUnusableByUser(ctx context.Context, userID int64, now time.Time) (int64, error)
}

// Tx exposes the repositories bound to one transaction (or, on a Store, to
// autocommit statements).
type Tx interface {
	Sessions() SessionRepo
	Reservations() ReservationRepo
	Coupons() CouponRepo
}

type Store interface {
	Tx
	// RunTx runs fn inside a transaction and commits when fn returns nil.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
