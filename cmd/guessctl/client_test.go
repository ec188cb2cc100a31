package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/guessroom/internal/game"
	"github.com/robalobadob/guessroom/internal/httpserver"
	"github.com/robalobadob/guessroom/internal/ledger"
	"github.com/robalobadob/guessroom/internal/poll"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore(), ledger.Options{})
	svc := game.NewService(l, game.Options{Draw: func() int { return 50 }})
	ts := httptest.NewServer(httpserver.New(svc, httpserver.Options{}).Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		_ = l.Close(ctx)
	})
	return ts
}

func TestClientRound(t *testing.T) {
	ctx := context.Background()
	ts := newServer(t)
	c := NewClient(ts.URL + "/")

	stream, err := c.Join(ctx, "Den", "alice")
	require.NoError(t, err)
	assert.Equal(t, "den", stream)

	_, err = c.Join(ctx, "den", "alice")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "duplicate_member", apiErr.Code)

	started, err := c.Start(ctx, "den")
	require.NoError(t, err)
	assert.False(t, started)

	_, err = c.Join(ctx, "den", "bob")
	require.NoError(t, err)
	require.NoError(t, c.WaitStart(ctx, "den", poll.WithMaxAttempts(3), poll.WithBackoff(poll.Fixed(time.Millisecond))))

	require.NoError(t, c.Say(ctx, "den", "alice", "I pick 40"))
	require.NoError(t, c.Say(ctx, "den", "bob", "65"))

	n, err := c.Points(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := c.Members(ctx, "den")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, 1, members[0].Points)

	hist, err := c.History(ctx, "den", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "65", hist[0].Text)

	require.NoError(t, c.Leave(ctx, "den", "bob"))
	err = c.Leave(ctx, "den", "bob")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientWaitStartGivesUp(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL)
	_, err := c.Join(context.Background(), "solo", "alice")
	require.NoError(t, err)

	err = c.WaitStart(context.Background(), "solo", poll.WithMaxAttempts(2), poll.WithBackoff(poll.Fixed(time.Millisecond)))
	require.ErrorIs(t, err, poll.ErrGaveUp)
}

func TestClientWatch(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, "w", func(m game.ChatMessage) {
			mu.Lock()
			seen = append(seen, m.Text)
			mu.Unlock()
		})
	}()

	// Join repeatedly until the watcher has attached and seen one.
	attempt := 0
	require.Eventually(t, func() bool {
		attempt++
		_, _ = c.Join(context.Background(), "w", fmt.Sprintf("p%d", attempt))
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Regexp(t, `^p\d+ joined$`, seen[0])
}

func TestCommands(t *testing.T) {
	ts := newServer(t)

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--server", ts.URL}, args...))
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	out, err := run("--room", "cli", "--nick", "alice", "join")
	require.NoError(t, err)
	assert.Contains(t, out, "joined cli as alice")

	_, err = run("--room", "cli", "--nick", "bob", "join")
	require.NoError(t, err)

	out, err = run("--room", "cli", "start", "--interval", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "round running in cli")

	_, err = run("--room", "cli", "--nick", "alice", "say", "my", "guess", "is", "49")
	require.NoError(t, err)
	_, err = run("--room", "cli", "--nick", "bob", "say", "10")
	require.NoError(t, err)

	out, err = run("points", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice: 1\n", out)

	out, err = run("--room", "cli", "members")
	require.NoError(t, err)
	assert.Contains(t, out, "NICK")
	assert.Contains(t, out, "alice")

	out, err = run("--room", "cli", "history", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "bob: 10")

	_, err = run("say", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--room is required")

	_, err = run("--room", "cli", "--nick", "alice", "join")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
}
