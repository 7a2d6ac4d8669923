// Package retry runs fetch attempts under a bounded retry budget with
// exponential backoff, rotating the transport identity every few
// retryable failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"fbposts/pkg/fetch"
	"fbposts/pkg/pool"
	"fbposts/pkg/post"
)

// Outcome is the resolution of one attempt.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "pending"
	}
}

// Attempt is one fetch try. It lives only until Execute returns.
type Attempt struct {
	Ref      fetch.Ref
	Number   int
	Identity pool.Identity
	Outcome  Outcome
	Err      error
}

type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// RotateEvery is K: every K-th retryable failure switches identity.
	RotateEvery int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		RotateEvery: 2,
	}
}

type Controller struct {
	cfg      Config
	pool     pool.Provider
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(n int64) int64
}

type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// WithJitter replaces the jitter source. jitter(n) must return a value in
// [0, n).
func WithJitter(jitter func(n int64) int64) Option {
	return func(c *Controller) {
		c.jitter = jitter
	}
}

func New(cfg Config, provider pool.Provider, opts ...Option) *Controller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RotateEvery <= 0 {
		cfg.RotateEvery = DefaultConfig().RotateEvery
	}

	c := &Controller{
		cfg:      cfg,
		pool:     provider,
		observer: NopObserver{},
		sleep:    sleepContext,
		jitter:   rand.Int64N,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps an attempt error to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, post.ErrFatalFetch):
		return OutcomeFatal
	case fetch.ClassOf(err).Transient():
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}

// Execute fetches ref with up to 1+MaxRetries attempts. Permanent failures
// return post.ErrFatalFetch at once; a spent budget returns
// post.ErrRetriesExhausted wrapping the last error. Cancelling ctx
// interrupts backoff waits with post.ErrCancelled but never an attempt in
// flight, which is bounded by the fetcher's own timeout.
func (c *Controller) Execute(ctx context.Context, fn fetch.Func, ref fetch.Ref) (fetch.Payload, error) {
	id, err := c.pool.Next()
	if err != nil {
		return fetch.Payload{}, fmt.Errorf("%w: acquire identity: %w", post.ErrFatalFetch, err)
	}
	held := true
	defer func() {
		if held {
			c.pool.Release(id)
		}
	}()

	attemptCtx := context.WithoutCancel(ctx)
	failures := 0

	for number := 1; ; number++ {
		attempt := Attempt{Ref: ref, Number: number, Identity: id, Outcome: OutcomePending}

		payload, err := fn(attemptCtx, ref, id)
		attempt.Outcome = Classify(err)
		attempt.Err = err

		switch attempt.Outcome {
		case OutcomeSuccess:
			return payload, nil
		case OutcomeFatal:
			c.observer.OnFatal(attempt)
			if errors.Is(err, post.ErrFatalFetch) {
				return fetch.Payload{}, err
			}
			return fetch.Payload{}, fmt.Errorf("%w: %w", post.ErrFatalFetch, err)
		}

		failures++
		if number > c.cfg.MaxRetries {
			c.observer.OnExhausted(attempt)
			return fetch.Payload{}, fmt.Errorf("%w after %d attempts: %w", post.ErrRetriesExhausted, number, err)
		}

		if failures%c.cfg.RotateEvery == 0 {
			c.pool.ReportFailure(id)
			c.pool.Release(id)

			next, rerr := c.pool.Next()
			if rerr != nil {
				held = false
				c.observer.OnExhausted(attempt)
				return fetch.Payload{}, fmt.Errorf("%w: rotate identity: %w", post.ErrRetriesExhausted, errors.Join(rerr, err))
			}
			c.observer.OnRotate(attempt, next)
			id = next
		}

		delay := c.Backoff(failures)
		c.observer.OnRetry(attempt, delay)

		if err := c.sleep(ctx, delay); err != nil {
			return fetch.Payload{}, fmt.Errorf("%w: during backoff before attempt %d: %w", post.ErrCancelled, number+1, err)
		}
	}
}
