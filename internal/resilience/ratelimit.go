package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so pacing can be tested without real waits.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limiter spaces call starts by at least a minimum interval. Each Limiter
// is an independent cursor.
type Limiter struct {
	interval time.Duration
	clock    Clock

	mu  sync.Mutex
	lim *rate.Limiter
}

type LimiterOption func(*Limiter)

func WithClock(c Clock) LimiterOption {
	return func(l *Limiter) { l.clock = c }
}

// NewLimiter returns a Limiter; a non-positive interval disables pacing.
func NewLimiter(minInterval time.Duration, opts ...LimiterOption) *Limiter {
	l := &Limiter{interval: minInterval, clock: realClock{}}
	for _, opt := range opts {
		opt(l)
	}
	if minInterval > 0 {
		l.lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return l
}

func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may start. Calls are delayed, never dropped;
// a cancelled wait gives its slot back.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}
	l.mu.Lock()
	now := l.clock.Now()
	r := l.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	l.mu.Unlock()

	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// RateLimited paces f through l.
func RateLimited[T any](l *Limiter, f Func[T]) Func[T] {
	return func(ctx context.Context) (T, error) {
		if err := l.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return f(ctx)
	}
}

// WithRateLimit paces f through a new, private Limiter.
func WithRateLimit[T any](f Func[T], minInterval time.Duration) Func[T] {
	return RateLimited(NewLimiter(minInterval), f)
}
