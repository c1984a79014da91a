package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"deadline-bot/internal/metrics"
)

// Pool bounds the number of concurrent portal sessions and applies a
// deadline to each one. Callers waiting for a slot only block their own
// goroutine.
type Pool struct {
	fetcher Fetcher
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *zap.Logger
}

func NewPool(fetcher Fetcher, workers int64, timeout time.Duration, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		fetcher: fetcher,
		sem:     semaphore.NewWeighted(workers),
		timeout: timeout,
		log:     log.Named("portal_pool"),
	}
}

func (p *Pool) Fetch(ctx context.Context, creds Credentials) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for portal slot: %v", ErrUnavailable, err)
	}
	defer p.sem.Release(1)

	metrics.PortalInFlight.Inc()
	defer metrics.PortalInFlight.Dec()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.fetcher.Fetch(ctx, creds)
	outcome := classify(ctx, err)
	metrics.PortalFetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		if outcome == "timeout" && !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

func classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}
