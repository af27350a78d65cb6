package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"search-scraper/pkg/utils"
)

const fileVersion = 1

type fileEntry struct {
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"` // Seconds since epoch
}

// fileEnvelope is the on-disk JSON shape. TTL is stored in seconds so the
// file stays readable outside this program.
type fileEnvelope struct {
	Version int                  `json:"version"`
	Created float64              `json:"created"`
	TTL     float64              `json:"ttl"`
	MaxSize int                  `json:"max_size"`
	Stats   Stats                `json:"stats"`
	Cache   map[string]fileEntry `json:"cache"`
}

// SaveToFile writes the cache to path as JSON, creating parent directories
// as needed. Expired entries are purged before writing. In-memory state is
// never corrupted by a failed save.
func (c *URLCache) SaveToFile(path string) error {
	c.mu.Lock()
	c.cleanExpiredLocked()

	env := fileEnvelope{
		Version: fileVersion,
		Created: float64(c.now().UnixNano()) / float64(time.Second),
		TTL:     c.ttl.Seconds(),
		MaxSize: c.maxSize,
		Stats:   c.statsLocked(),
		Cache:   make(map[string]fileEntry, len(c.entries)),
	}
	for k, e := range c.entries {
		env.Cache[k] = fileEntry{
			URL:       e.value,
			Timestamp: float64(e.ts.UnixNano()) / float64(time.Second),
		}
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding cache JSON: %v", utils.ErrParsing, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating cache dir: %v", utils.ErrFilesystem, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing cache file: %v", utils.ErrFilesystem, err)
	}

	c.log.Debugf("Cache saved to %s", path)
	return nil
}

// LoadFromFile replaces the cache contents with entries from path. Entries
// older than the cache TTL relative to load time are skipped; the count of
// skipped entries is returned. The file's saved ttl and max_size override
// the configured values when present (non-zero).
func (c *URLCache) LoadFromFile(path string) (skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading cache file: %v", utils.ErrFilesystem, err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("%w: decoding cache JSON: %v", utils.ErrParsing, err)
	}
	if env.Version == 0 || env.Cache == nil {
		return 0, fmt.Errorf("%w: %s missing version or cache fields", utils.ErrCacheFormat, path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if env.TTL > 0 {
		c.ttl = time.Duration(env.TTL * float64(time.Second))
	}
	if env.MaxSize > 0 {
		c.maxSize = env.MaxSize
	}

	now := c.now()
	c.entries = make(map[string]entry, len(env.Cache))
	for k, fe := range env.Cache {
		ts := time.Unix(0, int64(fe.Timestamp*float64(time.Second)))
		if now.Sub(ts) > c.ttl {
			skipped++
			continue
		}
		c.entries[k] = entry{value: fe.URL, ts: ts}
	}

	c.log.Debugf("Loaded %d entries from cache file %s (%d expired skipped)", len(c.entries), path, skipped)
	return skipped, nil
}
