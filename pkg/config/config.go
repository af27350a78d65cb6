package config

import "time"

// EngineConfig holds configuration specific to a single search engine
type EngineConfig struct {
	SearchURL        string        `yaml:"search_url"`                  // URL template, query appended as parameter
	QueryParam       string        `yaml:"query_param,omitempty"`       // Query string parameter name (default "wd")
	PageParam        string        `yaml:"page_param,omitempty"`        // Pagination offset parameter name (default "pn")
	ResultsPerPage   int           `yaml:"results_per_page,omitempty"`  // Offset multiplier for pagination
	ResultsContainer string        `yaml:"results_container,omitempty"` // Selector for the results wrapper element
	ResultSelector   string        `yaml:"result_selector,omitempty"`   // Selector for individual result blocks
	UserAgent        string        `yaml:"user_agent,omitempty"`
	Referer          string        `yaml:"referer,omitempty"`
	DelayPerHost     time.Duration `yaml:"delay_per_host,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent        string                  `yaml:"default_user_agent"`
	DefaultDelayPerHost     time.Duration           `yaml:"default_delay_per_host"`
	DefaultEngine           string                  `yaml:"default_engine,omitempty"`
	Proxies                 []string                `yaml:"proxies,omitempty"` // http/https/socks4/socks5 URLs, one picked at random per attempt
	MaxRequests             int                     `yaml:"max_requests"`
	MaxRequestsPerHost      int                     `yaml:"max_requests_per_host"`
	MaxConcurrentPages      int                     `yaml:"max_concurrent_pages,omitempty"` // Result pages fetched concurrently per scrape
	FilterAds               *bool                   `yaml:"filter_ads,omitempty"`           // nil=default true
	MaxRetries              int                     `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration           `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration           `yaml:"max_retry_delay,omitempty"`
	MaxRedirects            int                     `yaml:"max_redirects,omitempty"`
	BatchSize               int                     `yaml:"batch_size,omitempty"`       // URLs resolved per batch
	BatchDelayMin           time.Duration           `yaml:"batch_delay_min,omitempty"`  // Lower bound of jittered inter-batch sleep
	BatchDelayMax           time.Duration           `yaml:"batch_delay_max,omitempty"`  // Upper bound of jittered inter-batch sleep
	SemaphoreAcquireTimeout time.Duration           `yaml:"semaphore_acquire_timeout,omitempty"`
	GlobalSearchTimeout     time.Duration           `yaml:"global_search_timeout,omitempty"` // Timeout for a whole search run (0 = no timeout)
	StateDir                string                  `yaml:"state_dir"`                       // Badger history database location
	OutputDir               string                  `yaml:"output_dir,omitempty"`            // Where JSON result dumps are written
	Cache                   CacheConfig             `yaml:"cache,omitempty"`
	Enrich                  EnrichConfig            `yaml:"enrich,omitempty"`
	Ollama                  OllamaConfig            `yaml:"ollama,omitempty"`
	API                     APIConfig               `yaml:"api,omitempty"`
	HTTPClientSettings      HTTPClientConfig        `yaml:"http_client_settings,omitempty"`
	Engines                 map[string]EngineConfig `yaml:"engines"`
}

// CacheConfig holds settings for the resolved-URL cache
type CacheConfig struct {
	TTL              time.Duration `yaml:"ttl,omitempty"`               // Entry lifetime (0 = default)
	MaxSize          int           `yaml:"max_size,omitempty"`          // Entry cap before oldest-first eviction
	CleanupThreshold int           `yaml:"cleanup_threshold,omitempty"` // Operations between amortized expiry sweeps
	File             string        `yaml:"file,omitempty"`              // Persistence path ("" disables persistence)
}

// EnrichConfig holds settings for fetching full page content of top results
type EnrichConfig struct {
	TopN          int           `yaml:"top_n,omitempty"`          // How many leading results get page content fetched (0 disables)
	RespectRobots *bool         `yaml:"respect_robots,omitempty"` // nil=default true
	PageTimeout   time.Duration `yaml:"page_timeout,omitempty"`   // Timeout per page fetch
	MaxBodyBytes  int64         `yaml:"max_body_bytes,omitempty"` // Response body read cap (0 = default)
}

// OllamaConfig holds settings for the local LLM backend
type OllamaConfig struct {
	Host             string        `yaml:"host,omitempty"` // Server URL, e.g. http://localhost:11434
	DefaultModel     string        `yaml:"default_model,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`            // Per-generation timeout
	MaxContextTokens int           `yaml:"max_context_tokens,omitempty"` // Token budget for search context in prompts
	Temperature      float64       `yaml:"temperature,omitempty"`
	SystemPrompt     string        `yaml:"system_prompt,omitempty"` // Overrides the built-in grounding instructions
}

// APIConfig holds settings for the HTTP API server
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetEffectiveUserAgent determines the user agent for an engine's requests
func GetEffectiveUserAgent(engCfg EngineConfig, appCfg AppConfig) string {
	if engCfg.UserAgent != "" {
		return engCfg.UserAgent
	}
	return appCfg.DefaultUserAgent
}

// GetEffectiveDelayPerHost determines the per-host politeness delay for an engine
func GetEffectiveDelayPerHost(engCfg EngineConfig, appCfg AppConfig) time.Duration {
	if engCfg.DelayPerHost > 0 {
		return engCfg.DelayPerHost
	}
	return appCfg.DefaultDelayPerHost
}

// GetEffectiveRespectRobots determines whether enrichment fetches honor robots.txt
func GetEffectiveRespectRobots(appCfg AppConfig) bool {
	if appCfg.Enrich.RespectRobots != nil {
		return *appCfg.Enrich.RespectRobots
	}
	return true
}

// GetEffectiveFilterAds determines whether advertisement results are dropped
func GetEffectiveFilterAds(appCfg AppConfig) bool {
	if appCfg.FilterAds != nil {
		return *appCfg.FilterAds
	}
	return true
}
