package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilStopsWhenConditionHolds(t *testing.T) {
	calls := 0
	err := Until(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	}, WithBackoff(Fixed(time.Millisecond)))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilGivesUp(t *testing.T) {
	t.Run("attempts", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		}, WithMaxAttempts(4), WithBackoff(Fixed(time.Millisecond)))
		require.ErrorIs(t, err, ErrGaveUp)
		assert.Equal(t, 4, calls)
	})

	t.Run("elapsed time", func(t *testing.T) {
		err := Until(context.Background(), func(ctx context.Context) (bool, error) {
			return false, nil
		}, WithMaxElapsed(30*time.Millisecond), WithBackoff(Fixed(10*time.Millisecond)))
		require.ErrorIs(t, err, ErrGaveUp)
	})
}

func TestUntilErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("stop by default", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			return false, boom
		}, WithBackoff(Fixed(time.Millisecond)))
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("retried when accepted", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), func(ctx context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, boom
			}
			return true, nil
		}, WithBackoff(Fixed(time.Millisecond)), WithRetryIf(func(err error) bool { return errors.Is(err, boom) }))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestUntilHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Until(ctx, func(ctx context.Context) (bool, error) { return false, nil },
		WithBackoff(Fixed(time.Hour)), WithMaxElapsed(2*time.Hour))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExponentialBackoff(t *testing.T) {
	b := Exponential(100*time.Millisecond, time.Second)
	b.RandomizationFactor = 0
	b.Reset()

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)
}

func TestExponentialBackoffIsRandomized(t *testing.T) {
	b := Exponential(time.Second, time.Second)
	for i := 0; i < 100; i++ {
		d := b.NextBackOff()
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestOnWaitReportsAttempts(t *testing.T) {
	var waits []int
	_ = Until(context.Background(), func(ctx context.Context) (bool, error) { return false, nil },
		WithMaxAttempts(3), WithBackoff(Fixed(time.Millisecond)),
		WithOnWait(func(attempt int, _ time.Duration) { waits = append(waits, attempt) }))
	assert.Equal(t, []int{1, 2}, waits)
}
