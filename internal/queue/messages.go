// Package queue moves messages between the booking engine and the broker:
// lifecycle events go out on a topic exchange, payment confirmations come
// back in on a durable queue.
package queue

const (
	// ExchangeEvents is the topic exchange every lifecycle event is
	// published on, routed by event type.
	ExchangeEvents = "oneday.events"

	// RoutingPaymentConfirmed is the key the payment gateway publishes with.
	RoutingPaymentConfirmed = "payment.confirmed"

	// QueuePaymentConfirmed is the durable queue bound to RoutingPaymentConfirmed.
	QueuePaymentConfirmed = "oneday.payment.confirmed"
)

// PaymentConfirmed is sent by the payment gateway once a hold was paid for.
type PaymentConfirmed struct {
	ReservationID int64  `json:"reservation_id"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}
