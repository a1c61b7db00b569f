// Package ratelimit bounds how many requests may be issued within any trailing time window.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter grants at most rate acquisitions within any trailing period.
// Unlike a token bucket it has no fixed refill boundaries: it remembers the
// time of every grant still inside the window.
//
// A Limiter is safe for concurrent use. Waiters are not served in FIFO order;
// only the aggregate bound is guaranteed.
type Limiter struct {
	rate   int
	period time.Duration

	mu     sync.Mutex
	grants []time.Time // oldest first

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter allowing rate grants per period.
func New(rate int, period time.Duration) (*Limiter, error) {
	if rate <= 0 {
		return nil, errors.New("ratelimit: rate must be positive")
	}
	if period <= 0 {
		return nil, errors.New("ratelimit: period must be positive")
	}
	return &Limiter{
		rate:   rate,
		period: period,
		grants: make([]time.Time, 0, rate),
		now:    time.Now,
		sleep:  sleepContext,
	}, nil
}

// Rate returns the number of grants allowed per period.
func (l *Limiter) Rate() int { return l.rate }

// Period returns the length of the sliding window.
func (l *Limiter) Period() time.Duration { return l.period }

// Acquire blocks until one more grant fits in the window, records it and returns.
// It returns ctx.Err() without recording a grant if ctx is done first.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, granted := l.tryGrant()
		if granted {
			return nil
		}
		// Another waiter may take the freed slot first, so the window is re-checked after sleeping.
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryGrant records a grant if the window has room. Otherwise it reports how
// long until the oldest grant leaves the window.
func (l *Limiter) tryGrant() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	expired := 0
	for expired < len(l.grants) && now.Sub(l.grants[expired]) >= l.period {
		expired++
	}
	if expired > 0 {
		l.grants = append(l.grants[:0], l.grants[expired:]...)
	}

	if len(l.grants) < l.rate {
		l.grants = append(l.grants, now)
		return 0, true
	}
	return max(l.period-now.Sub(l.grants[0]), 0), false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
