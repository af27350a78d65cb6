package resolve

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/cache"
	"search-scraper/pkg/fetch"
	"search-scraper/pkg/utils"
)

// Options configures a Resolver. Zero values for the tuning knobs fall back
// to the defaults applied by New.
type Options struct {
	Client  *http.Client    // Must not follow redirects automatically (see fetch.NewResolveClient)
	Gate    *fetch.Gate     // Bounds concurrent resolutions; one permit covers a whole Resolve call
	Cache   *cache.URLCache // Optional; nil disables resolution caching
	Base    string          // Base URL for repairing relative links (usually the engine's search URL)
	Headers http.Header     // Sent with every hop; Cookie is always stripped, Referer is overwritten per hop
	Proxies []string        // Raw proxy list; invalid entries are filtered at construction

	MaxRetries    int           // Extra attempts per hop after the first (0 = single attempt)
	MinDelay      time.Duration // Lower bound of jittered sleeps between hops and retries
	MaxDelay      time.Duration // Upper bound of jittered sleeps
	MaxRedirects  int           // Redirect hops before giving up on a chain
	BatchSize     int           // URLs resolved concurrently per batch
	BatchDelayMin time.Duration // Lower bound of jittered inter-batch sleep
	BatchDelayMax time.Duration // Upper bound of jittered inter-batch sleep
}

// Resolver follows redirect chains hop by hop. It is built once per scrape
// session and is safe for concurrent use.
type Resolver struct {
	client  *http.Client
	gate    *fetch.Gate
	cache   *cache.URLCache
	base    string
	headers http.Header
	proxies []*url.URL

	maxRetries    int
	minDelay      time.Duration
	maxDelay      time.Duration
	maxRedirects  int
	batchSize     int
	batchDelayMin time.Duration
	batchDelayMax time.Duration

	log *logrus.Entry
}

// New creates a Resolver from opts, applying defaults for unset tuning
// values and filtering the proxy list.
func New(opts Options, log *logrus.Entry) *Resolver {
	r := &Resolver{
		client:        opts.Client,
		gate:          opts.Gate,
		cache:         opts.Cache,
		base:          opts.Base,
		headers:       opts.Headers,
		proxies:       FilterValidProxies(opts.Proxies, log),
		maxRetries:    opts.MaxRetries,
		minDelay:      opts.MinDelay,
		maxDelay:      opts.MaxDelay,
		maxRedirects:  opts.MaxRedirects,
		batchSize:     opts.BatchSize,
		batchDelayMin: opts.BatchDelayMin,
		batchDelayMax: opts.BatchDelayMax,
		log:           log,
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	if r.minDelay <= 0 {
		r.minDelay = 100 * time.Millisecond
	}
	if r.maxDelay < r.minDelay {
		r.maxDelay = r.minDelay
	}
	if r.maxRedirects <= 0 {
		r.maxRedirects = 5
	}
	if r.batchSize <= 0 {
		r.batchSize = 25
	}
	if r.batchDelayMin <= 0 {
		r.batchDelayMin = r.minDelay
	}
	if r.batchDelayMax < r.batchDelayMin {
		r.batchDelayMax = r.batchDelayMin
	}
	return r
}

// Resolve follows originalURL's redirect chain and returns the final
// destination. It always returns a usable URL: on failure the last known
// URL in the chain is returned alongside a non-nil error describing why
// resolution stopped short. Results (including fallbacks) are cached so a
// repeated URL never touches the network twice.
func (r *Resolver) Resolve(ctx context.Context, originalURL string) (string, error) {
	if originalURL == "" {
		return "", nil
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(originalURL); ok {
			r.log.Debugf("Cache hit: %s -> %s", originalURL, cached)
			return cached, nil
		}
	}
	return r.resolveUncached(ctx, originalURL)
}

// resolveUncached runs the repair + redirect chain without consulting the
// cache first. Results are still written back to the cache.
func (r *Resolver) resolveUncached(ctx context.Context, originalURL string) (string, error) {
	current := originalURL
	if !IsValidURL(current) {
		fixed, err := FixURL(current, r.base)
		if err != nil {
			r.log.WithError(err).Errorf("Cannot repair link %s", current)
			r.cacheSet(originalURL, originalURL)
			return originalURL, err
		}
		if !IsValidURL(fixed) {
			r.log.Warnf("Link remains invalid after repair: %s", fixed)
			r.cacheSet(originalURL, originalURL)
			return originalURL, fmt.Errorf("%w: %q not repairable", utils.ErrInvalidBaseURL, current)
		}
		r.log.Debugf("Repaired link %s -> %s", current, fixed)
		current = fixed
	}

	release, err := r.gate.Acquire(ctx)
	if err != nil {
		r.log.WithError(err).Warnf("Could not acquire resolution slot for %s", current)
		return current, err
	}
	defer release()

	resolved := current
	for hop := 0; hop < r.maxRedirects; hop++ {
		for attempt := 0; attempt <= r.maxRetries; attempt++ {
			next, final, err := r.step(ctx, resolved, hop, attempt)
			if err != nil {
				if attempt == r.maxRetries || ctx.Err() != nil {
					r.log.WithError(err).Errorf("Resolution failed for %s after %d attempt(s) at hop %d",
						resolved, attempt+1, hop+1)
					r.cacheSet(originalURL, resolved)
					return resolved, fmt.Errorf("%w: resolving %s: %v", utils.ErrRetryFailed, resolved, err)
				}
				r.sleepJitter(ctx, attempt+1)
				continue
			}
			if final != "" {
				r.log.Debugf("Resolved %s -> %s", originalURL, final)
				r.cacheSet(originalURL, final)
				return final, nil
			}
			r.log.Debugf("Redirect %d/%d: %s -> %s", hop+1, r.maxRedirects, resolved, next)
			resolved = next
			r.sleepJitter(ctx, 1)
			break
		}
	}

	r.log.Warnf("Redirect limit (%d) reached for %s, stopping at %s", r.maxRedirects, originalURL, resolved)
	r.cacheSet(originalURL, resolved)
	return resolved, fmt.Errorf("%w: %d hops from %s", utils.ErrRedirectExceeded, r.maxRedirects, originalURL)
}

// step performs one request against target. It returns the next URL in the
// chain (redirect with Location), or the final URL (anything else, or a
// redirect without Location), or an error when the request itself failed.
func (r *Resolver) step(ctx context.Context, target string, hop, attempt int) (next, final string, err error) {
	reqCtx := ctx
	if p := r.pickProxy(); p != nil {
		r.log.Debugf("Resolving (hop %d, attempt %d): %s via proxy %s", hop+1, attempt+1, target, p)
		reqCtx = fetch.WithProxy(ctx, p)
	} else {
		r.log.Debugf("Resolving (hop %d, attempt %d): %s", hop+1, attempt+1, target)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	r.applyHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", err
	}
	location := resp.Header.Get("Location")
	status := resp.StatusCode
	finalURL := resp.Request.URL
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if !isRedirect(status) {
		return "", finalURL.String(), nil
	}
	if location == "" {
		r.log.Warnf("Redirect status %d without Location for %s, treating as final", status, target)
		return "", target, nil
	}
	nextURL, perr := finalURL.Parse(location)
	if perr != nil {
		r.log.Warnf("Unparseable Location %q from %s, treating current URL as final", location, target)
		return "", target, nil
	}
	return nextURL.String(), "", nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// applyHeaders sets the session headers on req with the Cookie header
// stripped and the Referer rewritten to the origin of the URL being
// requested.
func (r *Resolver) applyHeaders(req *http.Request) {
	if r.headers != nil {
		req.Header = r.headers.Clone()
	}
	req.Header.Del("Cookie")
	if u := req.URL; u.Scheme != "" && u.Host != "" {
		req.Header.Set("Referer", u.Scheme+"://"+u.Host)
	}
}

func (r *Resolver) pickProxy() *url.URL {
	if len(r.proxies) == 0 {
		return nil
	}
	return r.proxies[rand.Intn(len(r.proxies))]
}

// sleepJitter sleeps for a uniform duration in [minDelay, maxDelay] scaled
// by factor, returning early if ctx is cancelled.
func (r *Resolver) sleepJitter(ctx context.Context, factor int) {
	delay := jitterBetween(r.minDelay, r.maxDelay) * time.Duration(factor)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func (r *Resolver) cacheSet(key, value string) {
	if r.cache != nil {
		r.cache.Set(key, value)
	}
}
