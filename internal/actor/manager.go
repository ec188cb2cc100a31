// internal/actor/manager.go
//
// Activation manager: one live, serialized instance per entity key.
// Responsibilities:
//   - Lazily activate an instance on first reference (restoring its state through a Lifecycle).
//   - Run every operation for a key on that instance's own goroutine, one at a time, FIFO.
//   - Evict instances that stayed idle for IdleTimeout, flushing state before unregistering.
//   - Flush every instance on Close.
//
// Notes:
//   - Operations for different keys run in parallel; there is no global lock on the hot path
//     beyond the registry map lookup.
//   - A caller that stops waiting (ctx done) does not cancel the operation; it still runs to
//     completion with a context detached from the caller's cancellation.

package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guessroom/internal/metrics"
)

var (
	// ErrClosed is returned for operations submitted after Close.
	ErrClosed = errors.New("actor manager closed")
	// ErrBusy is returned by Deactivate when operations were queued behind the request.
	ErrBusy = errors.New("actor has pending operations")
)

// Lifecycle restores and flushes the state of one instance.
type Lifecycle[S any] interface {
	// Activate builds the state for key. It runs on the instance goroutine before any operation.
	Activate(ctx context.Context, key string) (S, error)
	// Deactivate flushes durable state before the instance is released.
	Deactivate(ctx context.Context, key string, state S) error
}

// Options configure a Manager.
type Options struct {
	Kind        string              // label for logs/metrics: "room", "player"
	IdleTimeout time.Duration       // <= 0 disables idle eviction
	MailboxSize int                 // buffered operations per instance (default 64)
	Normalize   func(string) string // key normalization (case folding etc.)
	Metrics     *metrics.Actors     // optional
}

// Op is an operation executed against the live instance state.
type Op[S any] func(ctx context.Context, state S) (any, error)

// Manager maps keys to exactly one live instance of S.
type Manager[S any] struct {
	opts Options
	life Lifecycle[S]

	mu     sync.Mutex
	live   map[string]*activation[S]
	closed bool
}

// Handle addresses the instance for one key. It stays valid across evictions.
type Handle[S any] struct {
	key string
	m   *Manager[S]
}

// Key returns the normalized key the handle is bound to.
func (h Handle[S]) Key() string { return h.key }

type result struct {
	val any
	err error
}

type envelope[S any] struct {
	ctx    context.Context
	op     Op[S]
	retire bool
	force  bool
	reply  chan result
}

type activation[S any] struct {
	key   string
	inbox chan envelope[S]
	ready chan struct{}
	done  chan struct{}
	err   error // activation failure; written before ready is closed
	state S

	pending int // queued envelopes, guarded by Manager.mu
}

// NewManager constructs a Manager for one entity kind.
func NewManager[S any](life Lifecycle[S], opts Options) *Manager[S] {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 64
	}
	if opts.Kind == "" {
		opts.Kind = "entity"
	}
	return &Manager[S]{
		opts: opts,
		life: life,
		live: make(map[string]*activation[S]),
	}
}

func (m *Manager[S]) normalize(id string) string {
	if m.opts.Normalize != nil {
		return m.opts.Normalize(id)
	}
	return id
}

// Resolve returns a handle to the live instance for id, activating it if necessary.
// It fails with *ActivationError when the state cannot be restored.
func (m *Manager[S]) Resolve(ctx context.Context, id string) (Handle[S], error) {
	key := m.normalize(id)
	a, err := m.lookup(key, false)
	if err != nil {
		return Handle[S]{}, err
	}
	select {
	case <-a.ready:
	case <-ctx.Done():
		return Handle[S]{}, ctx.Err()
	}
	if a.err != nil {
		return Handle[S]{}, a.err
	}
	return Handle[S]{key: key, m: m}, nil
}

// Invoke runs op against the instance bound to h and returns its error.
func (m *Manager[S]) Invoke(ctx context.Context, h Handle[S], op func(ctx context.Context, state S) error) error {
	_, err := m.submit(ctx, h.key, envelope[S]{op: func(ctx context.Context, s S) (any, error) {
		return nil, op(ctx, s)
	}})
	return err
}

// Call runs op against the instance bound to h and returns its typed result.
func Call[S, R any](ctx context.Context, h Handle[S], op func(ctx context.Context, state S) (R, error)) (R, error) {
	var zero R
	if h.m == nil {
		return zero, errors.New("actor: zero handle")
	}
	v, err := h.m.submit(ctx, h.key, envelope[S]{op: func(ctx context.Context, s S) (any, error) {
		return op(ctx, s)
	}})
	if v == nil {
		return zero, err
	}
	out, _ := v.(R)
	return out, err
}

// Deactivate flushes and releases the instance for h if nothing else is queued for it.
// A later Resolve or Invoke reactivates from persisted state.
func (m *Manager[S]) Deactivate(ctx context.Context, h Handle[S]) error {
	m.mu.Lock()
	_, ok := m.live[h.key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := m.submit(ctx, h.key, envelope[S]{retire: true})
	return err
}

// Active reports the number of live instances.
func (m *Manager[S]) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close rejects new operations and deactivates every live instance after its queued work.
func (m *Manager[S]) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	live := make([]*activation[S], 0, len(m.live))
	for _, a := range m.live {
		live = append(live, a)
	}
	m.mu.Unlock()

	var errs []error
	for _, a := range live {
		if err := m.shutdown(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", m.opts.Kind, a.key, err))
		}
	}
	return errors.Join(errs...)
}

// shutdown retires a regardless of flush errors, retrying while reservations made before
// Close are still in flight. An instance that already left the registry is done.
func (m *Manager[S]) shutdown(ctx context.Context, a *activation[S]) error {
	for {
		m.mu.Lock()
		if m.live[a.key] != a {
			m.mu.Unlock()
			select {
			case <-a.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		a.pending++
		m.mu.Unlock()

		reply := make(chan result, 1)
		select {
		case a.inbox <- envelope[S]{ctx: ctx, retire: true, force: true, reply: reply}:
		case <-a.done:
			return nil
		case <-ctx.Done():
			m.mu.Lock()
			a.pending--
			m.mu.Unlock()
			return ctx.Err()
		}

		var r result
		select {
		case r = <-reply:
		case <-a.done:
			select {
			case r = <-reply:
				return r.err
			default:
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		if errors.Is(r.err, ErrBusy) {
			continue
		}
		<-a.done
		return r.err
	}
}

// lookup returns the activation for key, creating it if needed. When reserve is set the
// caller's envelope is counted as pending so the instance cannot be evicted underneath it.
func (m *Manager[S]) lookup(key string, reserve bool) (*activation[S], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	a, ok := m.live[key]
	if !ok {
		a = &activation[S]{
			key:   key,
			inbox: make(chan envelope[S], m.opts.MailboxSize),
			ready: make(chan struct{}),
			done:  make(chan struct{}),
		}
		m.live[key] = a
		go m.run(a)
	}
	if reserve {
		a.pending++
	}
	return a, nil
}

func (m *Manager[S]) submit(ctx context.Context, key string, env envelope[S]) (any, error) {
	a, err := m.lookup(key, true)
	if err != nil {
		return nil, err
	}
	env.ctx = context.WithoutCancel(ctx)
	env.reply = make(chan result, 1)

	select {
	case a.inbox <- env:
	case <-ctx.Done():
		m.mu.Lock()
		a.pending--
		m.mu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager[S]) run(a *activation[S]) {
	defer close(a.done)
	logger := log.With().Str("module", "actor").Str("kind", m.opts.Kind).Str("key", a.key).Logger()

	state, err := m.life.Activate(context.Background(), a.key)
	if err != nil {
		a.err = &ActivationError{Kind: m.opts.Kind, Key: a.key, Err: err}
		m.opts.Metrics.ActivationFailed(m.opts.Kind)
		logger.Error().Err(err).Msg("activation failed")
		m.mu.Lock()
		if m.live[a.key] == a {
			delete(m.live, a.key)
		}
		m.mu.Unlock()
		close(a.ready)
		m.drain(a)
		return
	}
	a.state = state
	close(a.ready)
	m.opts.Metrics.Activated(m.opts.Kind)
	logger.Debug().Msg("activated")

	idle := newIdleTimer(m.opts.IdleTimeout)
	defer idle.stop()

	for {
		select {
		case env := <-a.inbox:
			if env.retire {
				if m.retire(a, &env) {
					logger.Debug().Msg("deactivated")
					return
				}
				idle.reset()
				continue
			}
			val, err := m.exec(a, env)
			m.mu.Lock()
			a.pending--
			m.mu.Unlock()
			env.reply <- result{val: val, err: err}
			idle.reset()
		case <-idle.C():
			if m.retire(a, nil) {
				logger.Debug().Dur("idle", m.opts.IdleTimeout).Msg("deactivated after idle period")
				return
			}
			idle.reset()
		}
	}
}

// retire flushes the instance and unregisters it when no operation is queued behind the
// request. The flush runs before unregistering so a concurrent reactivation always reads
// the flushed state.
func (m *Manager[S]) retire(a *activation[S], env *envelope[S]) bool {
	reply := func(err error) {
		if env != nil {
			env.reply <- result{err: err}
		}
	}

	m.mu.Lock()
	busy := a.pending > 0 && env == nil
	m.mu.Unlock()
	if busy {
		return false
	}

	ctx := context.Background()
	if env != nil {
		ctx = env.ctx
	}
	flushErr := m.life.Deactivate(ctx, a.key, a.state)
	if flushErr != nil {
		log.Warn().Str("module", "actor").Str("kind", m.opts.Kind).Str("key", a.key).Err(flushErr).Msg("flush on deactivate failed")
		if env == nil || !env.force {
			if env != nil {
				m.mu.Lock()
				a.pending--
				m.mu.Unlock()
			}
			reply(flushErr)
			return false
		}
	}

	m.mu.Lock()
	if env != nil {
		a.pending--
	}
	if a.pending > 0 {
		m.mu.Unlock()
		reply(ErrBusy)
		return false
	}
	if m.live[a.key] == a {
		delete(m.live, a.key)
	}
	m.mu.Unlock()

	m.opts.Metrics.Deactivated(m.opts.Kind)
	reply(flushErr)
	return true
}

func (m *Manager[S]) exec(a *activation[S], env envelope[S]) (val any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %q: operation panicked: %v", m.opts.Kind, a.key, r)
			log.Error().Str("module", "actor").Str("kind", m.opts.Kind).Str("key", a.key).Interface("panic", r).Msg("recovered from panic")
		}
		m.opts.Metrics.Observe(m.opts.Kind, time.Since(start))
	}()
	return env.op(env.ctx, a.state)
}

// drain answers every envelope already reserved against a failed activation.
func (m *Manager[S]) drain(a *activation[S]) {
	for {
		m.mu.Lock()
		n := a.pending
		m.mu.Unlock()
		if n == 0 {
			return
		}
		env := <-a.inbox
		m.mu.Lock()
		a.pending--
		m.mu.Unlock()
		env.reply <- result{err: a.err}
	}
}
