package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
	"search-scraper/pkg/models"
	"search-scraper/pkg/scrape"
	"search-scraper/pkg/storage"
	"search-scraper/pkg/utils"
)

// runSearch handles the search subcommand
func runSearch(args []string) {
	fs := newFlagSet("search")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	engine := fs.String("engine", "", "Engine key from config file (defaults to the configured default engine)")
	pages := fs.Int("pages", 1, "Number of result pages to fetch")
	save := fs.Bool("save", false, "Write results to a JSON file in the output directory")
	noHistory := fs.Bool("no-history", false, "Skip recording this search in the history database")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: search-scraper search [options] <query>

Run a search, resolve result URLs, and print deduplicated records as JSON.

Options:
`)
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Error: a search query is required")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	engineName := *engine
	if engineName == "" {
		engineName = appCfg.DefaultEngine
	}

	scraper, err := scrape.NewScraper(appCfg, engineName, log)
	if err != nil {
		log.Fatalf("Failed to initialize scraper: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	records, err := scraper.Scrape(ctx, query, *pages)
	if err != nil && len(records) == 0 {
		recordHistory(appCfg, log, !*noHistory, query, engineName, nil, start, err)
		log.Fatalf("Search failed (%s): %v", utils.CategorizeError(err), err)
	}
	if err != nil {
		log.Warnf("Search completed partially (%s): %v", utils.CategorizeError(err), err)
	}

	results := flattenResults(records)
	recordHistory(appCfg, log, !*noHistory, query, engineName, results, start, nil)

	out, marshalErr := json.MarshalIndent(results, "", "  ")
	if marshalErr != nil {
		log.Fatalf("Failed to encode results: %v", marshalErr)
	}
	fmt.Println(string(out))

	stats := scraper.Stats()
	fmt.Fprintf(os.Stderr, "\n%d result(s) from %d/%d page(s) in %v (cache hit rate %.0f%%)\n",
		len(results), stats.Success, stats.Total, stats.Duration.Round(time.Millisecond), stats.Cache.HitRate*100)

	if *save {
		path, saveErr := scrape.SaveResults(appCfg.OutputDir, query, engineName, records)
		if saveErr != nil {
			log.Errorf("Failed to save results: %v", saveErr)
		} else {
			fmt.Fprintf(os.Stderr, "Results saved to %s\n", path)
		}
	}
}

// recordHistory persists the search outcome in the Badger history store.
// Best effort: failures are logged and never abort the command
func recordHistory(appCfg *config.AppConfig, log *logrus.Logger, enabled bool, query, engine string, results []models.SearchResult, start time.Time, searchErr error) {
	if !enabled || appCfg.StateDir == "" {
		return
	}

	store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "history"))
	if err != nil {
		log.Warnf("Could not open history store: %v", err)
		return
	}
	defer store.Close()

	rec := &models.SearchRecordDB{
		Query:       query,
		Engine:      engine,
		Status:      models.SearchStatusSuccess,
		ResultCount: len(results),
		Results:     results,
		SearchedAt:  start.UTC(),
		Elapsed:     time.Since(start),
	}
	if searchErr != nil && !errors.Is(searchErr, context.Canceled) {
		rec.Status = models.SearchStatusFailure
		rec.ErrorType = utils.CategorizeError(searchErr)
		rec.Results = nil
	} else if len(results) == 0 {
		rec.Status = models.SearchStatusEmpty
	}

	if _, err := store.SaveSearch(rec); err != nil {
		log.Warnf("Could not record search in history: %v", err)
	}
}
