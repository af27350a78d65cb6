package config

import (
	"fmt"
	"net/url"
	"time"

	"search-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// MaxRequests (global in-flight resolution bound)
	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 25")
		c.MaxRequests = 25
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 8")
		c.MaxRequestsPerHost = 8
	}

	// MaxConcurrentPages (result pages fetched at once)
	if c.MaxConcurrentPages <= 0 {
		c.MaxConcurrentPages = 5
	}

	// MaxRetries (per redirect hop)
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}

	// Retry delays
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = 100 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.InitialRetryDelay > c.MaxRetryDelay {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// MaxRedirects
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}

	// Batch scheduling
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.BatchDelayMin <= 0 {
		c.BatchDelayMin = 100 * time.Millisecond
	}
	if c.BatchDelayMax <= 0 {
		c.BatchDelayMax = 300 * time.Millisecond
	}
	if c.BatchDelayMin > c.BatchDelayMax {
		warnings = append(warnings, fmt.Sprintf(
			"batch_delay_min (%v) > batch_delay_max (%v), swapping",
			c.BatchDelayMin, c.BatchDelayMax))
		c.BatchDelayMin, c.BatchDelayMax = c.BatchDelayMax, c.BatchDelayMin
	}

	// SemaphoreAcquireTimeout
	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	// GlobalSearchTimeout
	if c.GlobalSearchTimeout < 0 {
		warnings = append(warnings, "global_search_timeout cannot be negative, disabling timeout")
		c.GlobalSearchTimeout = 0
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}

	// Proxies must parse as URLs with a usable scheme
	valid := c.Proxies[:0]
	for _, p := range c.Proxies {
		if p == "" {
			continue
		}
		u, perr := url.Parse(p)
		if perr != nil || !isProxyScheme(u.Scheme) {
			warnings = append(warnings, fmt.Sprintf("dropping invalid proxy %q", p))
			continue
		}
		valid = append(valid, p)
	}
	c.Proxies = valid

	// Validate every engine entry, applying selector/pagination defaults
	for name, eng := range c.Engines {
		engWarnings, engErr := eng.Validate()
		if engErr != nil {
			return warnings, fmt.Errorf("engine %q: %w", name, engErr)
		}
		for _, w := range engWarnings {
			warnings = append(warnings, fmt.Sprintf("engine %q: %s", name, w))
		}
		c.Engines[name] = eng
	}

	// DefaultEngine must exist in Engines when set
	if c.DefaultEngine != "" {
		if _, ok := c.Engines[c.DefaultEngine]; !ok {
			return warnings, fmt.Errorf("%w: default_engine %q has no engine entry", utils.ErrConfigValidation, c.DefaultEngine)
		}
	}

	c.Cache.validate(&warnings)
	c.Enrich.validate(&warnings)
	c.Ollama.validate(&warnings)
	c.API.validate()
	c.validateHTTPClientSettings()

	return warnings, nil
}

func isProxyScheme(scheme string) bool {
	switch scheme {
	case "http", "https", "socks4", "socks5":
		return true
	}
	return false
}

// validate applies defaults to cache settings.
func (c *CacheConfig) validate(warnings *[]string) {
	if c.TTL < 0 {
		*warnings = append(*warnings, "cache ttl cannot be negative, using default 24h")
		c.TTL = 0
	}
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = 100
	}
}

// validate applies defaults to enrichment settings.
func (c *EnrichConfig) validate(warnings *[]string) {
	if c.TopN < 0 {
		*warnings = append(*warnings, "enrich top_n cannot be negative, disabling enrichment")
		c.TopN = 0
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 15 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 2 << 20 // 2 MiB
	}
}

// validate applies defaults to Ollama settings.
func (c *OllamaConfig) validate(warnings *[]string) {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 4096
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		*warnings = append(*warnings, "ollama temperature out of range [0,2], using 0.7")
		c.Temperature = 0.7
	}
}

// validate applies defaults to API server settings.
func (c *APIConfig) validate() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 120 * time.Second
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 3 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 8
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks EngineConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place.
func (c *EngineConfig) Validate() (warnings []string, err error) {
	// Required: SearchURL
	if c.SearchURL == "" {
		return nil, fmt.Errorf("%w: engine has no search_url", utils.ErrConfigValidation)
	}
	if u, perr := url.Parse(c.SearchURL); perr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: engine search_url %q is not an absolute URL", utils.ErrConfigValidation, c.SearchURL)
	}

	if c.QueryParam == "" {
		c.QueryParam = "wd"
	}
	if c.PageParam == "" {
		c.PageParam = "pn"
	}
	if c.ResultsPerPage <= 0 {
		c.ResultsPerPage = 10
	}
	if c.ResultsContainer == "" {
		c.ResultsContainer = "#content_left"
	}
	if c.ResultSelector == "" {
		c.ResultSelector = "div[class*='c-container'], div[class*='result-op']"
	}

	return warnings, nil
}
