package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/ratelimit"
	"golang.org/x/sync/semaphore"
)

// FlowControl is shared by every request this process sends to GitHub.
// It caps simultaneous in-flight requests and the number of requests per second.
type FlowControl struct {
	sem     *semaphore.Weighted
	limiter *ratelimit.Limiter
}

// NewFlowControl allows maxConcurrent requests in flight and requestsPerSecond
// requests in any trailing second.
func NewFlowControl(maxConcurrent, requestsPerSecond int) (*FlowControl, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent requests must be positive, got %d", maxConcurrent)
	}
	limiter, err := ratelimit.New(requestsPerSecond, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return &FlowControl{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: limiter,
	}, nil
}

// Enter blocks until a request may be sent. The caller must call release once
// the response has been consumed.
func (f *FlowControl) Enter(ctx context.Context) (release func(), err error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := f.limiter.Acquire(ctx); err != nil {
		f.sem.Release(1)
		return nil, err
	}
	return func() { f.sem.Release(1) }, nil
}
