package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"search-scraper/pkg/utils"
)

// Gate bounds the total number of in-flight HTTP requests across all
// resolution and page fetch work in one scrape session. A single Gate is
// constructed per session and shared by every concurrent task; one permit
// covers a whole resolve call (all hops and retries), not a single request.
type Gate struct {
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	log            *logrus.Entry
}

// NewGate creates a Gate allowing maxRequests concurrent holders.
func NewGate(maxRequests int, acquireTimeout time.Duration, log *logrus.Entry) *Gate {
	limit := int64(maxRequests)
	if limit <= 0 {
		limit = 25
		log.Warnf("max_requests invalid or zero, defaulting to %d", limit)
	}
	return &Gate{
		sem:            semaphore.NewWeighted(limit),
		acquireTimeout: acquireTimeout,
		log:            log,
	}
}

// Acquire blocks until a permit is available, the acquire timeout elapses,
// or ctx is cancelled. On success the returned release func must be called
// exactly once.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if g.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
		defer cancel()
	}

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() == nil && acquireCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: after %v", utils.ErrSemaphoreTimeout, g.acquireTimeout)
		}
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// TryAcquire grabs a permit without blocking. Returns nil if none available.
func (g *Gate) TryAcquire() (release func(), ok bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return func() { g.sem.Release(1) }, true
}
