package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/oneday/internal/events"
)

// Publisher sends lifecycle events to a topic exchange. The connection is
// opened lazily and redialed on the next publish after a failure.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{
		url:      url,
		exchange: ExchangeEvents,
		log:      log,
	}
}

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	const op = "queue.Publisher.Publish"

	msg, err := buildPublishing(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Close releases the broker connection. Publish may still be called and
// will dial again.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	return err
}

// channel returns an open channel, dialing if needed. Caller holds p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if err := declareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}

	p.log.Info("amqp publisher connected", slog.String("exchange", p.exchange))
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}

func buildPublishing(ev events.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At.UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}, nil
}
