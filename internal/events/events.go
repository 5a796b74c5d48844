// Package events carries reservation lifecycle notifications to whatever
// is listening: the SSE fan-out over Redis and the AMQP exchange.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
)

type Type string

const (
	HoldCreated     Type = "reservation.hold_created"
	Paid            Type = "reservation.paid"
	CancelRequested Type = "reservation.cancel_requested"
	Canceled        Type = "reservation.canceled"
	CancelRejected  Type = "reservation.cancel_rejected"
	Expired         Type = "reservation.expired"
	Completed       Type = "reservation.completed"
	CouponIssued    Type = "coupon.issued"
	SessionCreated  Type = "session.created"
)

type Event struct {
	Type          Type                     `json:"type"`
	SessionID     int64                    `json:"session_id"`
	ReservationID int64                    `json:"reservation_id,omitempty"`
	UserID        int64                    `json:"user_id,omitempty"`
	Status        domain.ReservationStatus `json:"status,omitempty"`
	CouponID      int64                    `json:"coupon_id,omitempty"`
	At            time.Time                `json:"at"`
}

// ForReservation builds an event describing r's current state.
func ForReservation(t Type, r *domain.Reservation, at time.Time) Event {
	return Event{
		Type:          t,
		SessionID:     r.SessionID,
		ReservationID: r.ID,
		UserID:        r.UserID,
		Status:        r.Status,
		At:            at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }

// Nop discards every event.
var Nop Publisher = nop{}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
