package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
	"search-scraper/pkg/fetch"
	"search-scraper/pkg/models"
	"search-scraper/pkg/scrape"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: search-scraper %s [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
}

// searchRunner adapts per-engine scrape sessions to the Searcher interface
// shared by the HTTP API and MCP server. Each search gets its own session,
// matching the one-cache-one-gate-per-session model
type searchRunner struct {
	cfg *config.AppConfig
	log *logrus.Logger
}

func (r *searchRunner) Search(ctx context.Context, query, engine string, pages int) ([]models.SearchResult, error) {
	name := engine
	if name == "" {
		name = r.cfg.DefaultEngine
	}

	scraper, err := scrape.NewScraper(r.cfg, name, r.log)
	if err != nil {
		return nil, err
	}

	records, err := scraper.Scrape(ctx, query, pages)
	if err != nil {
		return nil, err
	}
	return flattenResults(records), nil
}

func flattenResults(records []*models.SearchResult) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// newEnricher builds a standalone enrichment pipeline for fetching the top
// result pages. Returns nil when enrichment is disabled in config.
func newEnricher(cfg *config.AppConfig, log *logrus.Logger) *scrape.Enricher {
	if cfg.Enrich.TopN <= 0 {
		return nil
	}

	entry := log.WithField("component", "enrich")
	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(client, cfg, log)
	limiter := fetch.NewRateLimiter(cfg.DefaultDelayPerHost, log)
	gate := fetch.NewGate(cfg.MaxRequests, cfg.SemaphoreAcquireTimeout, entry)
	robots := fetch.NewRobotsHandler(fetcher, limiter, gate, cfg, entry)
	hosts := fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, entry)

	return scrape.NewEnricher(fetcher, robots, hosts, cfg, entry)
}

// enrichIfConfigured fetches page content for the leading results when
// enrichment is enabled. Failures inside EnrichTop are logged and skipped.
func enrichIfConfigured(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, results []models.SearchResult) []models.PageContent {
	enricher := newEnricher(cfg, log)
	if enricher == nil {
		return nil
	}

	refs := make([]*models.SearchResult, len(results))
	for i := range results {
		refs[i] = &results[i]
	}

	start := time.Now()
	pages := enricher.EnrichTop(ctx, refs, cfg.Enrich.TopN)
	log.Infof("Enriched %d/%d top results in %v", len(pages), cfg.Enrich.TopN, time.Since(start).Round(time.Millisecond))
	return pages
}
