package actor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type counter struct {
	n int
}

// fakeLife persists counters in a map and can be told to fail activation.
type fakeLife struct {
	mu          sync.Mutex
	saved       map[string]int
	activations map[string]int
	failNext    map[string]error
	flushErr    error
}

func newFakeLife() *fakeLife {
	return &fakeLife{
		saved:       make(map[string]int),
		activations: make(map[string]int),
		failNext:    make(map[string]error),
	}
}

func (f *fakeLife) Activate(ctx context.Context, key string) (*counter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failNext[key]; ok {
		delete(f.failNext, key)
		return nil, err
	}
	f.activations[key]++
	return &counter{n: f.saved[key]}, nil
}

func (f *fakeLife) Deactivate(ctx context.Context, key string, c *counter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.saved[key] = c.n
	return nil
}

func (f *fakeLife) activationCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activations[key]
}

func (f *fakeLife) savedValue(key string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.saved[key]
	return v, ok
}

func incr(ctx context.Context, c *counter) error {
	c.n++
	return nil
}

func read(ctx context.Context, c *counter) (int, error) { return c.n, nil }

func TestInvokeSerializesPerKey(t *testing.T) {
	ctx := context.Background()
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	h, err := m.Resolve(ctx, "a")
	require.NoError(t, err)

	var inside, overlap atomic.Int32
	var g errgroup.Group
	for i := 0; i < 200; i++ {
		g.Go(func() error {
			return m.Invoke(ctx, h, func(ctx context.Context, c *counter) error {
				if inside.Add(1) > 1 {
					overlap.Add(1)
				}
				v := c.n
				time.Sleep(time.Microsecond)
				c.n = v + 1
				inside.Add(-1)
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	n, err := Call(ctx, h, read)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Zero(t, overlap.Load(), "operations for one key overlapped")
}

func TestInvokePreservesSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	h, err := m.Resolve(ctx, "a")
	require.NoError(t, err)

	var seen []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, m.Invoke(ctx, h, func(ctx context.Context, c *counter) error {
			seen = append(seen, i)
			return nil
		}))
	}
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	ha, err := m.Resolve(ctx, "a")
	require.NoError(t, err)
	hb, err := m.Resolve(ctx, "b")
	require.NoError(t, err)

	release := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		return m.Invoke(ctx, ha, func(ctx context.Context, c *counter) error {
			select {
			case <-release:
				return nil
			case <-time.After(time.Second):
				return errors.New("key b never ran while key a was busy")
			}
		})
	})
	g.Go(func() error {
		return m.Invoke(ctx, hb, func(ctx context.Context, c *counter) error {
			close(release)
			return nil
		})
	})
	require.NoError(t, g.Wait())
}

func TestNormalizeSharesInstance(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	m := NewManager[*counter](life, Options{Kind: "room", Normalize: strings.ToLower})

	h1, err := m.Resolve(ctx, "Lobby")
	require.NoError(t, err)
	h2, err := m.Resolve(ctx, "LOBBY")
	require.NoError(t, err)
	assert.Equal(t, h1.Key(), h2.Key())

	require.NoError(t, m.Invoke(ctx, h1, incr))
	n, err := Call(ctx, h2, read)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, life.activationCount("lobby"))
	assert.Equal(t, 1, m.Active())
}

func TestActivationFailure(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	boom := errors.New("store offline")
	life.failNext["p1"] = boom
	m := NewManager[*counter](life, Options{Kind: "player"})

	_, err := m.Resolve(ctx, "p1")
	var actErr *ActivationError
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "player", actErr.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, m.Active())

	t.Run("next resolve retries activation", func(t *testing.T) {
		h, err := m.Resolve(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, m.Invoke(ctx, h, incr))
	})
}

func TestQueuedOperationsFailWithActivationError(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	life.failNext["p1"] = errors.New("corrupt record")
	m := NewManager[*counter](life, Options{Kind: "player"})

	err := m.Invoke(ctx, Handle[*counter]{key: "p1", m: m}, incr)
	var actErr *ActivationError
	require.ErrorAs(t, err, &actErr)
}

func TestIdleEvictionFlushesAndReactivates(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	m := NewManager[*counter](life, Options{Kind: "player", IdleTimeout: 20 * time.Millisecond})

	h, err := m.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, m.Invoke(ctx, h, incr))
	require.NoError(t, m.Invoke(ctx, h, incr))

	require.Eventually(t, func() bool { return m.Active() == 0 }, time.Second, 5*time.Millisecond)
	v, ok := life.savedValue("p1")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	n, err := Call(ctx, h, read)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, life.activationCount("p1"))
}

func TestIdleFlushFailureKeepsInstance(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	life.flushErr = errors.New("disk full")
	m := NewManager[*counter](life, Options{Kind: "player", IdleTimeout: 10 * time.Millisecond})

	h, err := m.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, m.Invoke(ctx, h, incr))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, m.Active())
	n, err := Call(ctx, h, read)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExplicitDeactivate(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	m := NewManager[*counter](life, Options{Kind: "player"})

	h, err := m.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, m.Invoke(ctx, h, incr))
	require.NoError(t, m.Deactivate(ctx, h))
	assert.Zero(t, m.Active())

	v, _ := life.savedValue("p1")
	assert.Equal(t, 1, v)

	t.Run("deactivating an inactive handle is a no-op", func(t *testing.T) {
		require.NoError(t, m.Deactivate(ctx, h))
	})
}

func TestCloseFlushesEverything(t *testing.T) {
	ctx := context.Background()
	life := newFakeLife()
	m := NewManager[*counter](life, Options{Kind: "player"})

	for _, id := range []string{"a", "b", "c"} {
		h, err := m.Resolve(ctx, id)
		require.NoError(t, err)
		require.NoError(t, m.Invoke(ctx, h, incr))
	}
	require.NoError(t, m.Close(ctx))
	assert.Zero(t, m.Active())
	for _, id := range []string{"a", "b", "c"} {
		v, ok := life.savedValue(id)
		require.True(t, ok)
		assert.Equal(t, 1, v)
	}

	_, err := m.Resolve(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPanicIsReturnedAsError(t *testing.T) {
	ctx := context.Background()
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	h, err := m.Resolve(ctx, "a")
	require.NoError(t, err)

	err = m.Invoke(ctx, h, func(ctx context.Context, c *counter) error {
		panic("bad op")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad op")

	require.NoError(t, m.Invoke(ctx, h, incr), "instance must survive a panicking operation")
}

func TestCallerCancellationDoesNotAbortOperation(t *testing.T) {
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	h, err := m.Resolve(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	finish := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- m.Invoke(ctx, h, func(opCtx context.Context, c *counter) error {
			close(started)
			<-finish
			if opCtx.Err() != nil {
				return opCtx.Err()
			}
			c.n++
			return nil
		})
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	close(finish)

	n, err := Call(context.Background(), h, read)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCallReturnsValueWithError(t *testing.T) {
	ctx := context.Background()
	m := NewManager[*counter](newFakeLife(), Options{Kind: "test"})
	h, err := m.Resolve(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, m.Invoke(ctx, h, incr))

	boom := errors.New("boom")
	n, err := Call(ctx, h, func(ctx context.Context, c *counter) (int, error) {
		return c.n, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

// gatedLife blocks every flush until gate is closed and reports each flush that starts.
type gatedLife struct {
	entered chan string
	gate    chan struct{}
}

func (g *gatedLife) Activate(ctx context.Context, key string) (*counter, error) {
	return &counter{}, nil
}

func (g *gatedLife) Deactivate(ctx context.Context, key string, c *counter) error {
	select {
	case g.entered <- key:
	default:
	}
	<-g.gate
	return nil
}

func TestCloseWhileIdleEvictionInFlight(t *testing.T) {
	for i := 0; i < 20; i++ {
		life := &gatedLife{entered: make(chan string, 4), gate: make(chan struct{})}
		m := NewManager[*counter](life, Options{Kind: "test", IdleTimeout: 5 * time.Millisecond})
		for _, id := range []string{"a", "b"} {
			_, err := m.Resolve(context.Background(), id)
			require.NoError(t, err)
		}
		for j := 0; j < 2; j++ {
			select {
			case <-life.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("idle flush never started")
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errc := make(chan error, 1)
		go func() { errc <- m.Close(ctx) }()
		time.Sleep(20 * time.Millisecond)
		close(life.gate)

		select {
		case err := <-errc:
			require.NoError(t, err, "iteration %d", i)
		case <-time.After(3 * time.Second):
			t.Fatalf("Close did not return (iteration %d)", i)
		}
		cancel()
		assert.Zero(t, m.Active())
	}
}
