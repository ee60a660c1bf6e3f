package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/timmy/jobtide/internal/domain"
)

// RetryPolicy is the explicit backoff policy consumed by one retry
// helper, decoupled from business logic. Only transient failures are
// retried; authentication, structural and rate-limited errors surface
// immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	JitterFrac  float64 // e.g. 0.2 = ±20% around the computed delay
}

// DefaultRetryPolicy returns the shipped retry defaults.
// Parameters: none.
// Returns:
//   - RetryPolicy: 3 attempts, 500ms base, doubling, ±20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		JitterFrac:  0.2,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// the attempt budget, or the context ends.
// Parameters:
//   - ctx: context bounding all attempts and backoff waits.
//   - fn: operation to attempt.
// Returns:
//   - error: nil on success; otherwise the last attempt's error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if domain.Classify(err) != domain.ErrorClassTransient {
			return err
		}
		if attempt == attempts {
			break
		}
		// Retry only while the run has time left; a deadline that
		// already elapsed surfaces the transient error to this run's
		// report and the next run tries again.
		if ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.jittered(delay)):
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return err
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	frac := p.JitterFrac
	if frac <= 0 {
		return d
	}
	j := 1 + ((rand.Float64()*2 - 1) * frac)
	return time.Duration(float64(d) * j)
}
