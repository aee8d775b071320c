// Package retry executes fallible upstream operations with bounded
// exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	apperrors "catalog-search/internal/common/errors"
)

// Policy defines retry behavior for transient failures.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	// MaxDelay caps a single sleep; zero leaves only the schedule bound.
	MaxDelay time.Duration
	// Jitter multiplies each delay by a random factor in [0.5, 1.5].
	Jitter bool
	// Retryable decides which errors are retried. Defaults to apperrors.IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// DefaultPolicy mirrors the upstream's tolerance: three retries starting at one second.
var DefaultPolicy = Policy{
	MaxRetries:    3,
	InitialDelay:  1 * time.Second,
	BackoffFactor: 2,
	Jitter:        true,
}

// NoRetry runs the operation exactly once.
var NoRetry = Policy{}

// Bound is the largest delay the schedule may produce:
// InitialDelay * BackoffFactor^MaxRetries, further capped by MaxDelay.
func (p Policy) Bound() time.Duration {
	bound := time.Duration(float64(p.InitialDelay) * math.Pow(p.factor(), float64(p.MaxRetries)))
	if p.MaxDelay > 0 && bound > p.MaxDelay {
		bound = p.MaxDelay
	}
	return bound
}

// Delay returns the sleep before retry number attempt (0-based) given the
// previous delay. The result never falls below prev and never exceeds Bound,
// so the schedule is non-decreasing even with jitter.
func (p Policy) Delay(attempt int, prev time.Duration) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.factor(), float64(attempt))
	if p.Jitter {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		delay *= 0.5 + r()
	}

	d := time.Duration(delay)
	if d < prev {
		d = prev
	}
	if bound := p.Bound(); d > bound {
		d = bound
	}
	return d
}

func (p Policy) factor() float64 {
	if p.BackoffFactor < 1 {
		return 1
	}
	return p.BackoffFactor
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return apperrors.IsRetryable(err)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's retries are exhausted. The last error is always returned wrapped,
// never swallowed.
func Do[T any](ctx context.Context, policy Policy, operation string, op func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
		prev    time.Duration
	)

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.retryable(err) {
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Delay(attempt, prev)
		prev = delay
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, err)
		}

		if werr := policy.wait(ctx, delay); werr != nil {
			return zero, fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempt+1, lastErr)
		}
	}

	return zero, fmt.Errorf("%s failed after %d retries: %w", operation, policy.MaxRetries, lastErr)
}
