package common

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// IntervalPacer spaces calls at least interval apart using a single-token bucket.
type IntervalPacer struct {
	limiter *rate.Limiter
}

// NewIntervalPacer creates a pacer that admits one call per interval.
// A non-positive interval yields a pacer that never waits.
func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	if interval <= 0 {
		return &IntervalPacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &IntervalPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewRatePacer creates a token-bucket pacer allowing requestsPerSecond with an
// equal burst.
func NewRatePacer(requestsPerSecond int) *IntervalPacer {
	if requestsPerSecond <= 0 {
		return NewIntervalPacer(0)
	}
	return &IntervalPacer{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)}
}

// Wait blocks until the next call is admitted or ctx is done.
func (p *IntervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NoDelay is a pacer that never blocks. Used in tests and for unmetered providers.
type NoDelay struct{}

// Wait returns immediately unless ctx is already cancelled.
func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}
