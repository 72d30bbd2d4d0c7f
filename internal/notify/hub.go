package notify

import (
	"context"
	"sync"
	"time"
)

// FeedEvent is one entry on the security ops live feed.
type FeedEvent struct {
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub fans out feed events to all active subscribers. Slow subscribers are
// skipped rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan FeedEvent
	next int
}

// NewHub initialises an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan FeedEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (h *Hub) Subscribe(ctx context.Context) <-chan FeedEvent {
	ch := make(chan FeedEvent, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish fans out the event to all subscribers.
func (h *Hub) Publish(evt FeedEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
