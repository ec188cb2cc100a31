package broadcast

import (
	"sync"

	"github.com/robalobadob/guessroom/internal/metrics"
)

// Hub routes events to one Channel per stream key. Channels live independently of the actor
// that publishes to them, so subscribers survive actor deactivation. A channel exists only
// while it has subscribers.
type Hub[T any] struct {
	metrics *metrics.Broadcast

	mu       sync.RWMutex
	channels map[string]*Channel[T]
	closed   bool
}

// NewHub creates an empty hub. m may be nil.
func NewHub[T any](m *metrics.Broadcast) *Hub[T] {
	return &Hub[T]{metrics: m, channels: make(map[string]*Channel[T])}
}

// Subscribe attaches a listener to key, creating its channel on first use. After Close the
// returned subscription is already closed.
func (h *Hub[T]) Subscribe(key string) *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c := NewChannel[T](key, h.metrics)
		c.Close()
		return c.Subscribe()
	}
	c, ok := h.channels[key]
	if !ok {
		c = NewChannel[T](key, h.metrics)
		h.channels[key] = c
	}
	return c.Subscribe()
}

// Unsubscribe detaches sub from key and drops the channel once nobody listens. Unknown keys
// are ignored.
func (h *Hub[T]) Unsubscribe(key string, sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[key]
	if !ok {
		return
	}
	c.Unsubscribe(sub)
	if c.Len() == 0 {
		delete(h.channels, key)
		c.Close()
	}
}

// Publish delivers v to the listeners of key and returns how many received it.
func (h *Hub[T]) Publish(key string, v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.channels[key]
	if !ok {
		return 0
	}
	return c.Publish(v)
}

// Len reports how many keys currently have listeners.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Close closes every channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	channels := h.channels
	h.channels = make(map[string]*Channel[T])
	h.closed = true
	h.mu.Unlock()
	for _, c := range channels {
		c.Close()
	}
}
