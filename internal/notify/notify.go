// Package notify fans rating events out to connected observers. Delivery is
// best effort: slow subscribers lose events rather than stall publishers.
package notify

import (
	"context"
	"sync"
)

// Event announces that a rating changed. Observers should re-fetch on it.
type Event struct {
	StoreID int64 `json:"store_id"`
	Value   int   `json:"value"`
	UserID  int64 `json:"user_id"`
}

// Broadcaster emits an event to every observer.
type Broadcaster interface {
	Broadcast(ctx context.Context, e Event) error
}

// Subscriber hands out event streams. The returned func releases the stream.
type Subscriber interface {
	Subscribe() (<-chan Event, func())
}

const subscriberBuffer = 16

// Hub is the in-process fan-out point.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: map[int]chan Event{}}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Broadcast delivers e to local subscribers. It never blocks and never fails.
func (h *Hub) Broadcast(_ context.Context, e Event) error {
	h.deliver(e)
	return nil
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers reports how many observers are connected.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
