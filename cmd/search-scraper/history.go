package main

import (
	"encoding/json"
	"fmt"
	"os"

	"search-scraper/pkg/storage"
)

// runHistory handles the history subcommand
func runHistory(args []string) {
	fs := newFlagSet("history")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	limit := fs.Int("n", 20, "Number of recent searches to show")
	id := fs.String("id", "", "Show the full record with this ID")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	parseFlags(fs, args)

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if appCfg.StateDir == "" {
		log.Fatal("state_dir is not configured; search history is unavailable")
	}

	store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "history"))
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	if *id != "" {
		rec, err := store.GetSearch(*id)
		if err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode record: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	records, err := store.RecentSearches(*limit)
	if err != nil {
		log.Fatalf("Failed to list history: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No recorded searches.")
		return
	}

	for _, rec := range records {
		status := rec.Status.String()
		if rec.ErrorType != "" {
			status = fmt.Sprintf("%s (%s)", rec.Status, rec.ErrorType)
		}
		fmt.Printf("%s  %s  %-8s  %3d result(s)  %q\n",
			rec.SearchedAt.Local().Format("2006-01-02 15:04:05"), rec.ID, status, rec.ResultCount, rec.Query)
	}

	count, err := store.SearchCount()
	if err == nil {
		fmt.Fprintf(os.Stderr, "\nShowing %d of %d recorded search(es)\n", len(records), count)
	}
}
