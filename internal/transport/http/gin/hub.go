package httpgin

import (
	"context"
	"sync"

	"github.com/kirinyoku/oneday/internal/events"
)

// Hub fans session events out to the SSE watchers of this instance. It
// is an events.Publisher so it can sit behind the Redis subscription or
// take events straight from the notifier when Redis is off.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[chan events.Event]struct{}
	buffer int
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[int64]map[chan events.Event]struct{}),
		buffer: 16,
	}
}

// Subscribe registers a watcher of sessionID. The returned cancel must be
// called once the watcher is gone.
func (h *Hub) Subscribe(sessionID int64) (<-chan events.Event, func()) {
	ch := make(chan events.Event, h.buffer)

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan events.Event]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
		})
	}
}

// Publish hands ev to every watcher of its session. A watcher whose
// buffer is full misses the event rather than stalling the publisher.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	if ev.SessionID == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Watchers reports how many watchers sessionID has.
func (h *Hub) Watchers(sessionID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Relay feeds events received from another instance into the hub.
func (h *Hub) Relay(ctx context.Context, ev events.Event) {
	_ = h.Publish(ctx, ev)
}
