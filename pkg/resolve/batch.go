package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"search-scraper/pkg/models"
)

// BatchResolve resolves urls in chunks of the configured batch size. Each
// chunk's URLs run on their own goroutines; the shared gate still bounds how
// many touch the network at once. Results come back in submission order, one
// Resolution per input URL. A failed or panicking resolution never aborts
// its siblings; its Resolution carries the error and falls back to the last
// usable URL. A jittered delay separates consecutive chunks.
func (r *Resolver) BatchResolve(ctx context.Context, urls []string) models.Resolutions {
	out := make(models.Resolutions, len(urls))
	if len(urls) == 0 {
		return out
	}

	numBatches := (len(urls) + r.batchSize - 1) / r.batchSize
	for start := 0; start < len(urls); start += r.batchSize {
		end := start + r.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		r.log.Infof("Resolving batch %d/%d (%d URLs)", start/r.batchSize+1, numBatches, end-start)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = r.resolveOne(ctx, i, urls[i])
			}(i)
		}
		wg.Wait()

		if end < len(urls) {
			r.sleepBatchDelay(ctx)
		}
	}
	return out
}

// resolveOne wraps a single Resolve call, converting a panic into a failed
// Resolution so one bad URL cannot take down the whole batch.
func (r *Resolver) resolveOne(ctx context.Context, index int, rawURL string) (res models.Resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("Panic resolving %s: %v", rawURL, rec)
			res = models.Resolution{
				Index:    index,
				Original: rawURL,
				URL:      rawURL,
				Status:   models.ResolveStatusFallback,
				Err:      fmt.Errorf("panic resolving %s: %v", rawURL, rec),
			}
		}
	}()

	if r.cache != nil && rawURL != "" {
		if cached, ok := r.cache.Get(rawURL); ok {
			r.log.Debugf("Cache hit: %s -> %s", rawURL, cached)
			return models.Resolution{
				Index:    index,
				Original: rawURL,
				URL:      cached,
				Status:   models.ResolveStatusCacheHit,
			}
		}
	}

	var resolved string
	var err error
	if rawURL != "" {
		resolved, err = r.resolveUncached(ctx, rawURL)
	}
	if resolved == "" && rawURL != "" {
		resolved = rawURL
	}

	status := models.ResolveStatusResolved
	switch {
	case rawURL == "":
		status = models.ResolveStatusSkipped
	case err != nil:
		status = models.ResolveStatusFallback
	}
	return models.Resolution{
		Index:    index,
		Original: rawURL,
		URL:      resolved,
		Status:   status,
		Err:      err,
	}
}

func (r *Resolver) sleepBatchDelay(ctx context.Context) {
	delay := jitterBetween(r.batchDelayMin, r.batchDelayMax)
	r.log.Debugf("Waiting %v before next batch", delay)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
