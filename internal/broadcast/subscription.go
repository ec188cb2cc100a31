package broadcast

import "sync"

// Subscription is one listener on a Channel. Read events from C until it is closed.
type Subscription[T any] struct {
	id  string
	out chan T

	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscription[T any](id string) *Subscription[T] {
	return &Subscription[T]{
		id:     id,
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID is the subscription handle used to cancel it.
func (s *Subscription[T]) ID() string { return s.id }

// C delivers events in publish order. It is closed after Unsubscribe.
func (s *Subscription[T]) C() <-chan T { return s.out }

// Done is closed once the subscription has been cancelled.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Backlog reports events published but not yet read.
func (s *Subscription[T]) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

// pump moves the backlog into out one event at a time.
func (s *Subscription[T]) pump() {
	defer close(s.out)
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
