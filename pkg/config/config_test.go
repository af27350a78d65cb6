package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
default_user_agent: "Mozilla/5.0 (X11; Linux x86_64)"
default_delay_per_host: 500ms
default_engine: baidu
proxies:
  - http://proxy.example:8080
max_requests: 25
max_requests_per_host: 8
max_retries: 2
max_redirects: 5
batch_size: 10
state_dir: ./scraper_state
cache:
  ttl: 12h
  max_size: 500
  cleanup_threshold: 50
  file: ./url_cache.json
enrich:
  top_n: 3
  respect_robots: false
ollama:
  host: http://localhost:11434
  default_model: qwen2.5:7b
  max_context_tokens: 8192
api:
  listen_addr: ":9090"
engines:
  baidu:
    search_url: https://www.baidu.com/s
    query_param: wd
    page_param: pn
    results_per_page: 10
    results_container: "#content_left"
    user_agent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
`

func TestAppConfig_YAMLLoad(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), &cfg))

	assert.Equal(t, "baidu", cfg.DefaultEngine)
	assert.Equal(t, 500*time.Millisecond, cfg.DefaultDelayPerHost)
	assert.Equal(t, []string{"http://proxy.example:8080"}, cfg.Proxies)
	assert.Equal(t, 25, cfg.MaxRequests)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 10, cfg.BatchSize)

	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 500, cfg.Cache.MaxSize)
	assert.Equal(t, "./url_cache.json", cfg.Cache.File)

	require.NotNil(t, cfg.Enrich.RespectRobots)
	assert.False(t, *cfg.Enrich.RespectRobots)
	assert.Equal(t, 3, cfg.Enrich.TopN)

	assert.Equal(t, "qwen2.5:7b", cfg.Ollama.DefaultModel)
	assert.Equal(t, 8192, cfg.Ollama.MaxContextTokens)
	assert.Equal(t, ":9090", cfg.API.ListenAddr)

	eng, ok := cfg.Engines["baidu"]
	require.True(t, ok)
	assert.Equal(t, "https://www.baidu.com/s", eng.SearchURL)
	assert.Equal(t, "wd", eng.QueryParam)
	assert.Equal(t, 10, eng.ResultsPerPage)
}

func TestAppConfig_YAMLLoad_ThenValidate(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), &cfg))

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Unset fields picked up defaults, explicit fields preserved
	assert.Equal(t, 100*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Second, cfg.Enrich.PageTimeout)
}
