package fn

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable reports whether a failure is worth another attempt. Nil
	// retries everything except cancellation. A deadline hit by a single
	// attempt is retried while the caller's context is still live.
	Retryable func(error) bool
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

func (o RetryOpts) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if o.Retryable == nil {
		return true
	}
	return o.Retryable(err)
}

// backoff returns the wait before the attempt following attempt n (0-based).
func (o RetryOpts) backoff(n int) time.Duration {
	wait := o.InitialWait
	for i := 0; i < n && wait < o.MaxWait; i++ {
		wait *= 2
	}
	if o.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	if o.MaxWait > 0 && wait > o.MaxWait {
		wait = o.MaxWait
	}
	return wait
}

// Retry calls f until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached, backing off exponentially between attempts.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	var result Result[T]
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if err := ctx.Err(); err != nil {
			return Err[T](err)
		}
		if !opts.retryable(result.err) || attempt == opts.MaxAttempts-1 {
			return result
		}
		timer := time.NewTimer(opts.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
	}
	return result
}
