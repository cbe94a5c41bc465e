package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures Retrying.
type RetryPolicy struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; each later wait doubles.
	BaseDelay time.Duration
	// OnRetry, when set, observes every scheduled wait before it starts.
	// attempt is the number of attempts that have failed so far.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// WithRetry retries f up to maxAttempts times with exponential backoff.
func WithRetry[T any](f Func[T], maxAttempts int, baseDelay time.Duration) Func[T] {
	return Retrying(RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}, f)
}

// Retrying wraps f so that failures other than 4xx responses are retried.
// Waits are BaseDelay * 2^(attempt-1) with no jitter. A 4xx failure is
// returned after its single attempt; otherwise the last failure is returned
// once attempts are exhausted.
func Retrying[T any](p RetryPolicy, f Func[T]) Func[T] {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) (T, error) {
		attempt := 0
		op := func() (T, error) {
			attempt++
			v, err := f(ctx)
			if err != nil && IsClientError(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		}
		opts := []backoff.RetryOption{
			backoff.WithBackOff(doubling(p.BaseDelay)),
			backoff.WithMaxTries(uint(attempts)),
			backoff.WithMaxElapsedTime(0),
		}
		if p.OnRetry != nil {
			opts = append(opts, backoff.WithNotify(func(err error, d time.Duration) {
				p.OnRetry(attempt, err, d)
			}))
		}
		v, err := backoff.Retry(ctx, op, opts...)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return v, err
	}
}

func doubling(base time.Duration) *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
}
