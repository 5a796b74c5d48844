package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid reservation transition")

// TransitionError describes a state-machine move that is not allowed from
// the reservation's current status. It matches ErrInvalidTransition.
type TransitionError struct {
	Action string
	From   ReservationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s reservation in status %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (r *Reservation) require(action string, allowed ...ReservationStatus) error {
	for _, s := range allowed {
		if r.Status == s {
			return nil
		}
	}
	return &TransitionError{Action: action, From: r.Status}
}

// HoldExpired reports whether the hold deadline is strictly before now.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.Status == StatusHold && r.HoldExpiresAt != nil && r.HoldExpiresAt.Before(now)
}

// MarkPaid moves HOLD -> PAID.
func (r *Reservation) MarkPaid(now time.Time, paymentRef string) error {
	if err := r.require("pay", StatusHold); err != nil {
		return err
	}
	r.Status = StatusPaid
	r.PaidAt = ptr(now)
	r.HoldExpiresAt = nil
	r.PaymentRef = paymentRef
	r.UpdatedAt = now
	return nil
}

// RequestCancel moves HOLD|PAID -> CANCEL_REQUESTED.
func (r *Reservation) RequestCancel(now time.Time, reason string) error {
	if err := r.require("request cancellation of", StatusHold, StatusPaid); err != nil {
		return err
	}
	r.Status = StatusCancelRequested
	r.CancelRequestedAt = ptr(now)
	r.CancelReason = reason
	r.UpdatedAt = now
	return nil
}

// Cancel moves CANCEL_REQUESTED -> CANCELED.
func (r *Reservation) Cancel(now time.Time) error {
	if err := r.require("cancel", StatusCancelRequested); err != nil {
		return err
	}
	r.Status = StatusCanceled
	r.CanceledAt = ptr(now)
	r.HoldExpiresAt = nil
	r.UpdatedAt = now
	return nil
}

// RejectCancel moves CANCEL_REQUESTED -> PAID.
func (r *Reservation) RejectCancel(now time.Time) error {
	if err := r.require("reject cancellation of", StatusCancelRequested); err != nil {
		return err
	}
	r.Status = StatusPaid
	r.UpdatedAt = now
	return nil
}

// Expire moves HOLD -> EXPIRED once the deadline has passed.
func (r *Reservation) Expire(now time.Time) error {
	if err := r.require("expire", StatusHold); err != nil {
		return err
	}
	if !r.HoldExpired(now) {
		return &TransitionError{Action: "expire unexpired", From: r.Status}
	}
	r.Status = StatusExpired
	r.HoldExpiresAt = nil
	r.UpdatedAt = now
	return nil
}

// Complete moves PAID -> COMPLETED.
func (r *Reservation) Complete(now time.Time) error {
	if err := r.require("complete", StatusPaid); err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.CompletedAt = ptr(now)
	r.UpdatedAt = now
	return nil
}

func ptr[T any](v T) *T { return &v }
