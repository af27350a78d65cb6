package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
	"search-scraper/pkg/fetch"
	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

// Enricher fetches the full pages behind the top resolved results and
// converts their readable content to markdown, producing the context fed to
// the LLM layer. Unlike result-page fetches, enrichment hits arbitrary
// third-party hosts, so it honors robots.txt (configurable) and bounds
// per-host concurrency.
type Enricher struct {
	fetcher       *fetch.Fetcher
	robots        *fetch.RobotsHandler
	hosts         *fetch.HostSemaphorePool
	userAgent     string
	respectRobots bool
	pageTimeout   time.Duration
	maxBodyBytes  int64
	log           *logrus.Entry
}

// NewEnricher builds an Enricher sharing the session's fetcher and robots
// handler.
func NewEnricher(fetcher *fetch.Fetcher, robots *fetch.RobotsHandler, hosts *fetch.HostSemaphorePool, cfg *config.AppConfig, log *logrus.Entry) *Enricher {
	return &Enricher{
		fetcher:       fetcher,
		robots:        robots,
		hosts:         hosts,
		userAgent:     cfg.DefaultUserAgent,
		respectRobots: config.GetEffectiveRespectRobots(*cfg),
		pageTimeout:   cfg.Enrich.PageTimeout,
		maxBodyBytes:  cfg.Enrich.MaxBodyBytes,
		log:           log,
	}
}

// EnrichTop fetches page content for the first topN results that have a
// resolved URL. Failures are logged and skipped; the returned slice holds
// only the pages that could be fetched and converted.
func (e *Enricher) EnrichTop(ctx context.Context, results []*models.SearchResult, topN int) []models.PageContent {
	if topN <= 0 {
		return nil
	}

	var pages []models.PageContent
	for _, res := range results {
		if len(pages) >= topN {
			break
		}
		if res.URL == "" {
			continue
		}
		page, err := e.FetchPage(ctx, res.URL)
		if err != nil {
			e.log.WithError(err).Warnf("Skipping content enrichment for %s", res.URL)
			continue
		}
		pages = append(pages, page)
		if ctx.Err() != nil {
			break
		}
	}
	return pages
}

// FetchPage retrieves one page and converts its body to markdown.
func (e *Enricher) FetchPage(ctx context.Context, pageURL string) (models.PageContent, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return models.PageContent{}, fmt.Errorf("%w: %q is not an absolute URL", utils.ErrParsing, pageURL)
	}

	if e.respectRobots && !e.robots.TestAgent(ctx, u, e.userAgent) {
		return models.PageContent{}, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, pageURL)
	}

	if err := e.hosts.Acquire(ctx, u.Host); err != nil {
		return models.PageContent{}, err
	}
	defer e.hosts.Release(u.Host)

	fetchCtx := ctx
	if e.pageTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.pageTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return models.PageContent{}, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.fetcher.FetchWithRetry(fetchCtx, req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return models.PageContent{}, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if e.maxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, e.maxBodyBytes)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return models.PageContent{}, fmt.Errorf("%w: %s: %v", utils.ErrParsing, pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Strip non-content elements before conversion.
	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()
	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		html, err = doc.Html()
		if err != nil {
			return models.PageContent{}, fmt.Errorf("%w: %s: %v", utils.ErrParsing, pageURL, err)
		}
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return models.PageContent{}, fmt.Errorf("%w: markdown conversion for %s: %v", utils.ErrParsing, pageURL, err)
	}

	return models.PageContent{
		URL:       resp.Request.URL.String(),
		Title:     title,
		Markdown:  strings.TrimSpace(markdown),
		FetchedAt: time.Now(),
	}, nil
}
