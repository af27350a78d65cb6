package models

import "time"

// TitleContent is a single overflow snippet folded into a merged result's
// "more" list when duplicate records carry differing titles or content.
type TitleContent struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// RelatedLink is a secondary link attached to a search result (e.g. sitelinks
// under a main hit on a result page). Same shape as SearchResult minus the
// nested related links; related links never nest more than one level deep.
type RelatedLink struct {
	Title   string         `json:"title,omitempty"`
	URL     string         `json:"url"`
	Content string         `json:"content,omitempty"`
	Source  string         `json:"source,omitempty"`
	Time    string         `json:"time,omitempty"`
	More    []TitleContent `json:"more,omitempty"`
}

// SearchResult represents one entry scraped from a result page, after URL
// resolution and deduplication.
type SearchResult struct {
	Title        string         `json:"title"`
	URL          string         `json:"url"`
	Content      string         `json:"content,omitempty"`
	Source       string         `json:"source,omitempty"` // Site name / breadcrumb shown on the result page
	Time         string         `json:"time,omitempty"`   // Free-form publication time as shown on the page
	More         []TitleContent `json:"more,omitempty"`   // Overflow from merged duplicates
	RelatedLinks []RelatedLink  `json:"related_links,omitempty"`
}

// PageContent holds the readable content of a fetched result page, converted
// to markdown for LLM consumption.
type PageContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Markdown  string    `json:"markdown"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Resolution is the outcome of resolving one URL from a batch. Err is non-nil
// when all redirect hops and retries were exhausted; URL then falls back to
// the last known-good URL (usually the original).
type Resolution struct {
	Index    int    // Position in the submitted batch
	Original string // URL as submitted
	URL      string // Final resolved URL (or fallback on error)
	Status   ResolveStatus
	Err      error
}

// Resolutions is a batch of resolution outcomes in submission order.
type Resolutions []Resolution

// URLs returns the final URL of every resolution, preserving batch order.
// Failed entries contribute their fallback URL, so the slice always has the
// same length as the submitted batch.
func (rs Resolutions) URLs() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.URL
	}
	return out
}

// FailureCount returns how many resolutions in the batch carried an error.
func (rs Resolutions) FailureCount() int {
	n := 0
	for _, r := range rs {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// SearchRecordDB stores the outcome of one search in the history database.
type SearchRecordDB struct {
	ID          string         `json:"id"` // UUID assigned at search time
	Query       string         `json:"query"`
	Engine      string         `json:"engine"`
	Status      SearchStatus   `json:"status"`
	ErrorType   string         `json:"error_type,omitempty"` // Error category (on failure)
	ResultCount int            `json:"result_count"`
	Results     []SearchResult `json:"results,omitempty"`
	SearchedAt  time.Time      `json:"searched_at"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Answer is an LLM-generated response grounded on search results.
type Answer struct {
	Query       string    `json:"query"`
	Model       string    `json:"model"`
	Text        string    `json:"answer"`
	Sources     []string  `json:"sources,omitempty"` // URLs fed into the prompt context
	GeneratedAt time.Time `json:"generated_at"`
}
