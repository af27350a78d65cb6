package models

// ResolveStatus represents how a URL resolution concluded
type ResolveStatus string

const (
	ResolveStatusUnset    ResolveStatus = ""          // Zero value = unset/unknown
	ResolveStatusResolved ResolveStatus = "resolved"  // Followed redirects to a final URL
	ResolveStatusCacheHit ResolveStatus = "cache_hit" // Answered from the URL cache
	ResolveStatusFallback ResolveStatus = "fallback"  // Errors exhausted, original URL returned
	ResolveStatusSkipped  ResolveStatus = "skipped"   // Input invalid or empty, nothing to resolve
)

// String implements fmt.Stringer for logging
func (s ResolveStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ResolveStatus) IsValid() bool {
	switch s {
	case ResolveStatusResolved, ResolveStatusCacheHit, ResolveStatusFallback, ResolveStatusSkipped:
		return true
	}
	return false
}

// SearchStatus represents the outcome of a search stored in history
type SearchStatus string

const (
	SearchStatusUnset   SearchStatus = ""        // Zero value = unset/unknown
	SearchStatusSuccess SearchStatus = "success" // Results scraped and deduplicated
	SearchStatusFailure SearchStatus = "failure" // Scrape failed (blocked page, network, parse)
	SearchStatusEmpty   SearchStatus = "empty"   // Page scraped cleanly but yielded no results
)

// String implements fmt.Stringer for logging
func (s SearchStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s SearchStatus) IsValid() bool {
	switch s {
	case SearchStatusSuccess, SearchStatusFailure, SearchStatusEmpty:
		return true
	}
	return false
}
