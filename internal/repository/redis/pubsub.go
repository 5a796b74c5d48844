package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/oneday/internal/events"
)

// EventsPubSub broadcasts lifecycle events on one channel so every
// instance can push session changes to its SSE subscribers.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

var _ events.Publisher = (*EventsPubSub)(nil)

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelSessionsChanged(),
	}
}

func (p *EventsPubSub) Publish(ctx context.Context, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every well-formed event until ctx ends or
// the subscription is closed. ready, if non-nil, is closed once the
// subscription is confirmed by the server.
func (p *EventsPubSub) Subscribe(
	ctx context.Context,
	ready chan<- struct{},
	handler func(ctx context.Context, ev events.Event),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.SessionID != 0 {
				handler(ctx, ev)
			}
		}
	}
}
