// Package retry re-runs operations that failed with a transient error,
// backing off exponentially with jitter between attempts.
// Used around language-model calls and the initial database ping.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// retryableError marks an error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. Unmarked errors end the loop at once.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Policy describes how often and how patiently to retry.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// Multiplier grows the wait after each failure.
	Multiplier float64

	// Jitter spreads each wait by ±Jitter of its value (0..1).
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a retrier.
func New(p Policy) *Retrier {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0
	}
	return &Retrier{policy: p, sleep: sleepContext}
}

// LLMRetrier backs off from half a second; provider rate limits are common.
func LLMRetrier(maxAttempts int, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
		OnRetry:     onRetry,
	})
}

// DatabaseRetrier retries quickly; used while the pool is connecting.
func DatabaseRetrier() *Retrier {
	return New(Policy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.05,
	})
}

// Do runs op until it succeeds, returns an unmarked error, runs out of
// attempts, or ctx ends. The returned error never carries the Retryable mark.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = unmark(err)

		if attempt >= r.policy.MaxAttempts {
			return lastErr
		}

		delay := r.delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, lastErr, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
}

// delay for the wait after the given failed attempt.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if limit := float64(r.policy.MaxDelay); limit > 0 && d > limit {
		d = limit
	}
	if r.policy.Jitter > 0 {
		d += d * r.policy.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func unmark(err error) error {
	var r *retryableError
	if errors.As(err, &r) && r == err {
		return r.err
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
