package events

import (
	"context"
	"log/slog"
)

// Invalidator drops cached read models of a session.
type Invalidator interface {
	InvalidateSession(ctx context.Context, sessionID int64) error
}

// Notifier runs the after-commit side effects of a write: cached views of
// every touched session are dropped, then the events are published.
// Failures are logged; the write has already committed.
type Notifier struct {
	cache Invalidator
	pub   Publisher
	log   *slog.Logger
}

func NewNotifier(cache Invalidator, pub Publisher, log *slog.Logger) *Notifier {
	if pub == nil {
		pub = Nop
	}
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{cache: cache, pub: pub, log: log}
}

func (n *Notifier) Notify(ctx context.Context, evs ...Event) {
	if n == nil {
		return
	}

	seen := make(map[int64]struct{}, 1)
	for _, ev := range evs {
		if n.cache == nil {
			break
		}
		if _, ok := seen[ev.SessionID]; ok || ev.SessionID == 0 {
			continue
		}
		seen[ev.SessionID] = struct{}{}

		if err := n.cache.InvalidateSession(ctx, ev.SessionID); err != nil {
			n.log.Warn("cache invalidation failed",
				slog.Int64("session_id", ev.SessionID), slog.Any("err", err))
		}
	}

	for _, ev := range evs {
		if err := n.pub.Publish(ctx, ev); err != nil {
			n.log.Warn("event publish failed",
				slog.String("type", string(ev.Type)),
				slog.Int64("reservation_id", ev.ReservationID),
				slog.Any("err", err))
		}
	}
}
