package grpc

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const subscriberBuffer = 100

// EventHub fans engine events out to stream subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type EventHub struct {
	subscribers map[uint64]chan *models.Event
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[uint64]chan *models.Event),
	}
}

func (h *EventHub) Subscribe() (uint64, chan *models.Event) {
	id := h.nextID.Add(1)
	ch := make(chan *models.Event, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *EventHub) Unsubscribe(id uint64) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *EventHub) Publish(e *models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped is the number of deliveries skipped because a subscriber was slow.
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
