package events

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultSubscriberBuffer is the channel capacity used by Subscribe when the
// caller passes 0.
const DefaultSubscriberBuffer = 64

// DefaultHistory is the number of events a Hub retains for Recent.
const DefaultHistory = 256

// Subscriber is a channel that receives events in publish order.
type Subscriber chan Event

// Hub fans events out to subscribers and keeps a ring of recent events.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.Mutex
	subscribers map[Subscriber]struct{}
	// history holds the newest events; event i of published lands in slot
	// i % len(history).
	history   []Event
	published int
	logger    *zap.Logger
}

// NewHub creates a Hub remembering the last history events.
//
// Precondition: logger must be non-nil. history <= 0 uses DefaultHistory.
func NewHub(history int, logger *zap.Logger) *Hub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		history:     make([]Event, history),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber with the given buffer size
// (0 = DefaultSubscriberBuffer) and returns its channel.
func (h *Hub) Subscribe(buffer int) Subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(Subscriber, buffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes its channel. Unknown subscribers are
// ignored.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub)
}

// Publish records e and delivers it to every subscriber with room.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[h.published%len(h.history)] = e
	h.published++

	for sub := range h.subscribers {
		select {
		case sub <- e:
		default:
			h.logger.Warn("events: subscriber buffer full, event dropped",
				zap.String("kind", string(e.Kind)),
				zap.String("session", e.SessionID),
			)
		}
	}
}

// Recent returns the last n published events, oldest first. n <= 0 returns
// everything retained.
func (h *Hub) Recent(n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := min(h.published, len(h.history))
	if n <= 0 || n > kept {
		n = kept
	}
	out := make([]Event, n)
	for i := range out {
		out[i] = h.history[(h.published-n+i)%len(h.history)]
	}
	return out
}

// Drain returns the events currently buffered in sub without blocking.
func Drain(sub Subscriber) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-sub:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}
