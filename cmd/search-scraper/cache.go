package main

import (
	"encoding/json"
	"fmt"
	"os"

	"search-scraper/pkg/cache"
)

// runCache handles the cache subcommand (stats / clear)
func runCache(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: search-scraper cache <stats|clear> [options]")
		os.Exit(1)
	}
	action := args[0]

	fs := newFlagSet("cache " + action)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	parseFlags(fs, args[1:])

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if appCfg.Cache.File == "" {
		log.Fatal("cache.file is not configured; the resolved-URL cache is not persisted")
	}

	switch action {
	case "stats":
		if _, err := os.Stat(appCfg.Cache.File); os.IsNotExist(err) {
			fmt.Printf("No cache file at %s\n", appCfg.Cache.File)
			return
		}

		c := cache.New(appCfg.Cache, log.WithField("component", "cache"))
		skipped, err := c.LoadFromFile(appCfg.Cache.File)
		if err != nil {
			log.Fatalf("Failed to load cache file: %v", err)
		}

		stats := c.Stats()
		out, marshalErr := json.MarshalIndent(stats, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to encode stats: %v", marshalErr)
		}
		fmt.Println(string(out))
		if skipped > 0 {
			fmt.Fprintf(os.Stderr, "%d expired or malformed entries skipped on load\n", skipped)
		}

	case "clear":
		if err := os.Remove(appCfg.Cache.File); err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No cache file at %s\n", appCfg.Cache.File)
				return
			}
			log.Fatalf("Failed to remove cache file: %v", err)
		}
		fmt.Printf("Removed cache file %s\n", appCfg.Cache.File)

	default:
		fmt.Fprintf(os.Stderr, "Unknown cache action: %s (supported: stats, clear)\n", action)
		os.Exit(1)
	}
}
