package scrape

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"search-scraper/pkg/cache"
	"search-scraper/pkg/config"
	"search-scraper/pkg/fetch"
	"search-scraper/pkg/models"
	"search-scraper/pkg/resolve"
	"search-scraper/pkg/utils"
)

// Stats summarizes one scrape session.
type Stats struct {
	Total       int           `json:"total"`   // Pages attempted
	Success     int           `json:"success"` // Pages that yielded records
	Failed      int           `json:"failed"`  // Pages skipped on fetch/parse failure
	Duration    time.Duration `json:"duration"`
	SuccessRate float64       `json:"success_rate"`
	Cache       cache.Stats   `json:"cache"`
}

// Scraper holds the per-session state for one search engine: the gate and
// URL cache shared by every concurrent task, the HTTP clients, the redirect
// resolver, and the extraction collaborator. Construct one per scrape
// operation and share it by reference; a fresh gate per batch would defeat
// the global concurrency bound.
type Scraper struct {
	cfg        *config.AppConfig
	engineName string
	engine     config.EngineConfig

	fetcher   *fetch.Fetcher
	resolver  *resolve.Resolver
	gate      *fetch.Gate
	urlCache  *cache.URLCache
	limiter   *fetch.RateLimiter
	extractor *Extractor

	log *logrus.Entry

	mu      sync.Mutex
	total   int
	success int
	failed  int
	start   time.Time
	end     time.Time
}

// NewScraper wires a session for the named engine. The cache file, when
// configured, is loaded best-effort: a missing or unreadable file starts an
// empty cache.
func NewScraper(cfg *config.AppConfig, engineName string, log *logrus.Logger) (*Scraper, error) {
	engine, ok := cfg.Engines[engineName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", utils.ErrConfigValidation, engineName)
	}

	entry := log.WithField("component", "scraper")
	gate := fetch.NewGate(cfg.MaxRequests, cfg.SemaphoreAcquireTimeout, entry)

	urlCache := cache.New(cfg.Cache, log.WithField("component", "cache"))
	if cfg.Cache.File != "" {
		if skipped, err := urlCache.LoadFromFile(cfg.Cache.File); err != nil {
			entry.WithError(err).Debugf("Starting with empty URL cache (%s)", cfg.Cache.File)
		} else if skipped > 0 {
			entry.Infof("Loaded URL cache from %s, skipped %d expired entries", cfg.Cache.File, skipped)
		}
	}

	headers := http.Header{}
	headers.Set("User-Agent", config.GetEffectiveUserAgent(engine, *cfg))
	if engine.Referer != "" {
		headers.Set("Referer", engine.Referer)
	}

	base, err := engineOrigin(engine.SearchURL)
	if err != nil {
		return nil, err
	}

	resolver := resolve.New(resolve.Options{
		Client:        fetch.NewResolveClient(cfg.HTTPClientSettings, log),
		Gate:          gate,
		Cache:         urlCache,
		Base:          base,
		Headers:       headers,
		Proxies:       cfg.Proxies,
		MaxRetries:    cfg.MaxRetries,
		MinDelay:      cfg.BatchDelayMin,
		MaxDelay:      cfg.BatchDelayMax,
		MaxRedirects:  cfg.MaxRedirects,
		BatchSize:     cfg.BatchSize,
		BatchDelayMin: cfg.BatchDelayMin,
		BatchDelayMax: cfg.BatchDelayMax,
	}, log.WithField("component", "resolve"))

	pageClient := fetch.NewClient(cfg.HTTPClientSettings, log)

	return &Scraper{
		cfg:        cfg,
		engineName: engineName,
		engine:     engine,
		fetcher:    fetch.NewFetcher(pageClient, cfg, log),
		resolver:   resolver,
		gate:       gate,
		urlCache:   urlCache,
		limiter:    fetch.NewRateLimiter(config.GetEffectiveDelayPerHost(engine, *cfg), log),
		extractor:  NewExtractor(engine, config.GetEffectiveFilterAds(*cfg), entry),
		log:        entry,
	}, nil
}

// engineOrigin reduces a search URL to its scheme://host origin, used as
// the base for repairing relative redirect links.
func engineOrigin(searchURL string) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: search_url %q is not absolute", utils.ErrConfigValidation, searchURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Scrape runs the full pipeline for a query: fetch pages in concurrent
// batches, extract records, deduplicate on raw URLs, resolve every primary
// and related URL in one batch operation, write resolutions back by
// position, deduplicate again on final URLs. A page that fails to fetch or
// parse is skipped, never fatal to the scrape.
func (s *Scraper) Scrape(ctx context.Context, query string, pages int) ([]*models.SearchResult, error) {
	if pages <= 0 {
		pages = 1
	}
	if s.cfg.GlobalSearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GlobalSearchTimeout)
		defer cancel()
	}

	s.mu.Lock()
	s.start = time.Now()
	s.mu.Unlock()
	s.log.Infof("Scraping started: query=%q pages=%d concurrent=%d", query, pages, s.cfg.MaxConcurrentPages)

	perPage := make([][]*models.SearchResult, pages)
	for batchStart := 0; batchStart < pages; batchStart += s.cfg.MaxConcurrentPages {
		batchEnd := min(batchStart+s.cfg.MaxConcurrentPages, pages)
		s.log.Infof("Processing page batch %d-%d", batchStart+1, batchEnd)

		var wg sync.WaitGroup
		for page := batchStart; page < batchEnd; page++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				records, err := s.scrapePage(ctx, query, page)
				if err != nil {
					s.log.WithError(err).Errorf("Page %d failed, skipping", page+1)
					s.markPage(false)
					return
				}
				perPage[page] = records
				s.markPage(true)
			}(page)
		}
		wg.Wait()

		if batchEnd < pages {
			s.sleepBetweenBatches(ctx)
		}
		if ctx.Err() != nil {
			break
		}
	}

	var all []*models.SearchResult
	for _, records := range perPage {
		all = append(all, records...)
	}

	s.log.Infof("Deduplicating %d raw records", len(all))
	all = Deduplicate(all)

	s.log.Infof("Resolving URLs for %d records", len(all))
	all = s.resolveURLs(ctx, all)

	if s.cfg.Cache.File != "" {
		if err := s.urlCache.SaveToFile(s.cfg.Cache.File); err != nil {
			s.log.WithError(err).Warnf("Could not save URL cache to %s", s.cfg.Cache.File)
		} else {
			s.log.Infof("Saved URL cache to %s", s.cfg.Cache.File)
		}
	}

	s.mu.Lock()
	s.end = time.Now()
	elapsed := s.end.Sub(s.start)
	s.mu.Unlock()
	s.log.Infof("Scrape completed: query=%q results=%d elapsed=%v", query, len(all), elapsed)

	return all, ctx.Err()
}

// scrapePage fetches and parses one result page. The gate bounds the fetch
// alongside all resolution traffic; the rate limiter spaces requests to the
// engine host.
func (s *Scraper) scrapePage(ctx context.Context, query string, page int) ([]*models.SearchResult, error) {
	pageURL, err := s.buildPageURL(query, page)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Fetching page %d: %s", page+1, pageURL)

	u, _ := url.Parse(pageURL)
	s.limiter.ApplyDelay(u.Host, config.GetEffectiveDelayPerHost(s.engine, *s.cfg))

	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer s.limiter.UpdateLastRequestTime(u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", config.GetEffectiveUserAgent(s.engine, *s.cfg))
	if s.engine.Referer != "" {
		req.Header.Set("Referer", s.engine.Referer)
	}

	resp, err := s.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", utils.ErrParsing, page+1, err)
	}
	return s.extractor.Parse(doc)
}

// buildPageURL renders the engine's search URL for a query and zero-based
// page number, using the engine's pagination offset scheme.
func (s *Scraper) buildPageURL(query string, page int) (string, error) {
	u, err := url.Parse(s.engine.SearchURL)
	if err != nil {
		return "", fmt.Errorf("%w: search_url: %v", utils.ErrConfigValidation, err)
	}
	q := u.Query()
	q.Set(s.engine.QueryParam, query)
	q.Set(s.engine.PageParam, strconv.Itoa(page*s.engine.ResultsPerPage))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolveURLs collects every primary and related URL, resolves the whole
// set in one batch operation, writes the results back by position, and runs
// the final deduplication pass.
func (s *Scraper) resolveURLs(ctx context.Context, records []*models.SearchResult) []*models.SearchResult {
	type linkRef struct {
		record  int
		related int // -1 for the primary URL
	}

	var urls []string
	var refs []linkRef
	for i, rec := range records {
		if rec.URL != "" {
			urls = append(urls, rec.URL)
			refs = append(refs, linkRef{record: i, related: -1})
		}
		for j := range rec.RelatedLinks {
			if rec.RelatedLinks[j].URL != "" {
				urls = append(urls, rec.RelatedLinks[j].URL)
				refs = append(refs, linkRef{record: i, related: j})
			}
		}
	}
	if len(urls) == 0 {
		return records
	}

	resolutions := s.resolver.BatchResolve(ctx, urls)
	if n := resolutions.FailureCount(); n > 0 {
		s.log.Warnf("%d of %d URL resolutions fell back to their original URL", n, len(urls))
	}

	for k, res := range resolutions {
		ref := refs[k]
		if ref.related < 0 {
			records[ref.record].URL = res.URL
		} else {
			records[ref.record].RelatedLinks[ref.related].URL = res.URL
		}
	}

	return Deduplicate(records)
}

func (s *Scraper) markPage(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if ok {
		s.success++
	} else {
		s.failed++
	}
}

func (s *Scraper) sleepBetweenBatches(ctx context.Context) {
	lo, hi := s.cfg.BatchDelayMin, s.cfg.BatchDelayMax
	delay := lo
	if hi > lo {
		delay += time.Duration(rand.Int63n(int64(hi - lo)))
	}
	s.log.Debugf("Sleeping %v between page batches", delay)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// Stats returns a snapshot of the session's counters and cache statistics.
func (s *Scraper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dur time.Duration
	switch {
	case !s.start.IsZero() && !s.end.IsZero():
		dur = s.end.Sub(s.start)
	case !s.start.IsZero():
		dur = time.Since(s.start)
	}

	var rate float64
	if s.total > 0 {
		rate = float64(s.success) / float64(s.total)
	}

	return Stats{
		Total:       s.total,
		Success:     s.success,
		Failed:      s.failed,
		Duration:    dur,
		SuccessRate: rate,
		Cache:       s.urlCache.Stats(),
	}
}

// EngineName reports which configured engine this session targets.
func (s *Scraper) EngineName() string { return s.engineName }

// Cache exposes the session's URL cache for stats and maintenance commands.
func (s *Scraper) Cache() *cache.URLCache { return s.urlCache }

// Resolver exposes the session's URL resolver for standalone resolution.
func (s *Scraper) Resolver() *resolve.Resolver { return s.resolver }
