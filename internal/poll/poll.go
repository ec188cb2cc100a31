// Package poll repeats a condition check with backoff until it holds.
//
// Rooms never wait on behalf of a caller: StartRound answers false while too few members are
// present, and it is up to the caller to ask again. Until is that caller-side loop, driven by
// cenkalti/backoff.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrGaveUp is returned when the attempt or time budget runs out before the condition holds.
var ErrGaveUp = errors.New("poll: condition not met")

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) (bool, error)

// Exponential doubles the wait from initial up to max, randomized by half either way.
func Exponential(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.Reset()
	return b
}

// Fixed waits interval between attempts.
func Fixed(interval time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(interval)
}

type config struct {
	maxAttempts uint
	maxElapsed  time.Duration
	backoff     backoff.BackOff
	retryIf     func(error) bool
	onWait      func(attempt int, wait time.Duration)
}

// Option configures Until.
type Option func(*config)

// WithMaxAttempts bounds the number of checks; 0 leaves only the time budget.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxAttempts = uint(n)
		}
	}
}

// WithMaxElapsed bounds the total time spent polling (backoff's 15 minute default otherwise).
func WithMaxElapsed(d time.Duration) Option {
	return func(c *config) { c.maxElapsed = d }
}

// WithBackoff sets the wait strategy.
func WithBackoff(b backoff.BackOff) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithRetryIf keeps polling after errors fn accepts. By default errors end the poll.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) { c.retryIf = fn }
}

// WithOnWait is called before every wait (progress output in the CLI).
func WithOnWait(fn func(attempt int, wait time.Duration)) Option {
	return func(c *config) { c.onWait = fn }
}

// Until calls cond until it reports true, an error stops it, the budget is spent
// (ErrGaveUp) or ctx ends.
func Until(ctx context.Context, cond Condition, opts ...Option) error {
	cfg := config{backoff: Exponential(250*time.Millisecond, 5*time.Second)}
	for _, opt := range opts {
		opt(&cfg)
	}

	attempt := 0
	retry := []backoff.RetryOption{
		backoff.WithBackOff(cfg.backoff),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			if cfg.onWait != nil {
				cfg.onWait(attempt, wait)
			}
		}),
	}
	if cfg.maxAttempts > 0 {
		retry = append(retry, backoff.WithMaxTries(cfg.maxAttempts))
	}
	if cfg.maxElapsed > 0 {
		retry = append(retry, backoff.WithMaxElapsedTime(cfg.maxElapsed))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		ok, err := cond(ctx)
		switch {
		case err != nil && (cfg.retryIf == nil || !cfg.retryIf(err)):
			return struct{}{}, backoff.Permanent(err)
		case err != nil:
			return struct{}{}, err
		case !ok:
			return struct{}{}, ErrGaveUp
		}
		return struct{}{}, nil
	}, retry...)
	return err
}
