package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/service/reservation"
)

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, reservationID int64, paymentRef string) (*domain.Reservation, error)
}

type outcome int

const (
	ack outcome = iota
	requeue
	reject
)

// Consumer feeds payment confirmations from the broker into the
// reservation service. Run keeps reconnecting until ctx is done.
type Consumer struct {
	url       string
	confirmer PaymentConfirmer
	log       *slog.Logger

	prefetch   int
	maxBackoff time.Duration
}

func NewConsumer(url string, confirmer PaymentConfirmer, log *slog.Logger) *Consumer {
	return &Consumer{
		url:        url,
		confirmer:  confirmer,
		log:        log,
		prefetch:   16,
		maxBackoff: 30 * time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("payment consumer: dial failed",
				slog.Any("err", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("payment consumer: loop ended, reconnecting", slog.Any("err", err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("payment consumer: set QoS failed", slog.Any("err", err))
	}

	if err := declareExchange(ch, ExchangeEvents); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueuePaymentConfirmed, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(QueuePaymentConfirmed, RoutingPaymentConfirmed, ExchangeEvents, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(QueuePaymentConfirmed, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("payment consumer: consuming", slog.String("queue", QueuePaymentConfirmed))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch c.handle(ctx, d.Body) {
			case ack:
				_ = d.Ack(false)
			case requeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Nack(false, false)
			}
		}
	}
}

// handle decides the fate of one message. Replays of an already applied
// confirmation are acked; lock contention is requeued.
func (c *Consumer) handle(ctx context.Context, body []byte) outcome {
	var msg PaymentConfirmed
	if err := json.Unmarshal(body, &msg); err != nil || msg.ReservationID <= 0 {
		c.log.Warn("payment consumer: malformed message", slog.Any("err", err))
		return reject
	}

	_, err := c.confirmer.ConfirmPayment(ctx, msg.ReservationID, msg.PaymentRef)
	switch {
	case err == nil:
		return ack
	case reservation.IsTransient(err):
		c.log.Warn("payment consumer: transient failure",
			slog.Int64("reservation_id", msg.ReservationID), slog.Any("err", err))
		return requeue
	case errors.Is(err, reservation.ErrInvalidState), errors.Is(err, reservation.ErrNotFound):
		c.log.Warn("payment consumer: confirmation not applied",
			slog.Int64("reservation_id", msg.ReservationID), slog.Any("err", err))
		return ack
	default:
		c.log.Error("payment consumer: confirm failed",
			slog.Int64("reservation_id", msg.ReservationID), slog.Any("err", err))
		return reject
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
