// internal/broadcast/channel.go
//
// Fan-out of room events to independent subscribers.
// Responsibilities:
//   - Register/unregister subscribers (Subscribe/Unsubscribe, both safe to repeat).
//   - Publish a value to every current subscriber without blocking on any of them.
//   - Deliver to each subscriber in publish order through its own goroutine.
//
// Each subscriber owns an unbounded backlog: a slow reader accumulates events instead of
// losing them or stalling the publisher. Subscribers start at "now"; there is no replay.

package broadcast

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/robalobadob/guessroom/internal/metrics"
)

// Channel is the broadcast channel for one stream key.
type Channel[T any] struct {
	key     string
	metrics *metrics.Broadcast

	mu     sync.RWMutex
	subs   map[string]*Subscription[T]
	closed bool
}

// NewChannel creates an empty channel. m may be nil.
func NewChannel[T any](key string, m *metrics.Broadcast) *Channel[T] {
	return &Channel[T]{
		key:     key,
		metrics: m,
		subs:    make(map[string]*Subscription[T]),
	}
}

// Key returns the stream key the channel was created for.
func (c *Channel[T]) Key() string { return c.key }

// Subscribe attaches a new listener. Events published before the call are not delivered.
// Subscribing to a closed channel returns an already-closed subscription.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	s := newSubscription[T](ulid.Make().String())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.stop()
		close(s.out)
		return s
	}
	c.subs[s.id] = s
	c.metrics.Subscribed()
	go s.pump()
	return s
}

// Unsubscribe stops delivery to sub and closes its output. Unknown or already removed
// subscriptions are ignored.
func (c *Channel[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	_, ok := c.subs[sub.id]
	if ok {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()
	if ok {
		c.metrics.Unsubscribed()
		sub.stop()
	}
}

// Publish enqueues v for every current subscriber and returns how many it reached.
func (c *Channel[T]) Publish(v T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0
	}
	for _, s := range c.subs {
		s.enqueue(v)
	}
	c.metrics.Published()
	return len(c.subs)
}

// Len reports the number of attached subscribers.
func (c *Channel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Close detaches every subscriber; later publishes are dropped.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*Subscription[T])
	c.closed = true
	c.mu.Unlock()
	for _, s := range subs {
		c.metrics.Unsubscribed()
		s.stop()
	}
}
