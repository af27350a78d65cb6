package scrape

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

// resultsFile is the on-disk shape of a saved result set.
type resultsFile struct {
	Query     string                 `json:"query"`
	Engine    string                 `json:"engine"`
	Timestamp time.Time              `json:"timestamp"`
	Results   []*models.SearchResult `json:"results"`
}

// SaveResults writes the final record list as indented JSON under dir,
// naming the file from the sanitized query and a timestamp. Returns the
// written path.
func SaveResults(dir, query, engine string, results []*models.SearchResult) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", utils.ErrFilesystem, dir, err)
	}

	name := utils.SanitizeFilename(query)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", name, time.Now().Format("20060102_150405")))

	data, err := json.MarshalIndent(resultsFile{
		Query:     query,
		Engine:    engine,
		Timestamp: time.Now(),
		Results:   results,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrParsing, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", utils.ErrFilesystem, path, err)
	}
	return path, nil
}
