package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/api"
	"search-scraper/pkg/config"
	"search-scraper/pkg/llm"
	"search-scraper/pkg/models"
	"search-scraper/pkg/storage"
)

const gcInterval = 10 * time.Minute

// serveAnswerer wraps the Ollama client so API answers get the same page
// enrichment as the ask subcommand.
type serveAnswerer struct {
	cfg    *config.AppConfig
	log    *logrus.Logger
	client *llm.Client
}

func (a *serveAnswerer) Ask(ctx context.Context, question string, results []models.SearchResult, pages []models.PageContent, model string) (*models.Answer, error) {
	if len(pages) == 0 {
		pages = enrichIfConfigured(ctx, a.cfg, a.log, results)
	}
	return a.client.Ask(ctx, question, results, pages, model)
}

func (a *serveAnswerer) Status(ctx context.Context) bool {
	return a.client.Status(ctx)
}

// runServe handles the serve subcommand
func runServe(args []string) {
	fs := newFlagSet("serve")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	logLevel := fs.String("loglevel", "info", "Log level (trace, debug, info, warn, error)")

	parseFlags(fs, args)

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	if *addr != "" {
		appCfg.API.ListenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searcher := &searchRunner{cfg: appCfg, log: log}

	// The LLM backend is optional: without it /ask returns 503 but
	// search and history still work.
	var answerer api.Answerer
	if client, err := llm.NewClient(appCfg.Ollama, log.WithField("component", "ollama")); err != nil {
		log.Warnf("Ollama client unavailable, /ask disabled: %v", err)
	} else {
		answerer = &serveAnswerer{cfg: appCfg, log: log, client: client}
	}

	var history api.History
	if appCfg.StateDir == "" {
		log.Warn("state_dir not configured, history endpoints disabled")
	} else {
		store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "history"))
		if err != nil {
			log.Fatalf("Failed to open history store: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Errorf("Error closing history store: %v", err)
			}
		}()
		go store.RunGC(ctx, gcInterval)
		history = store
	}

	server := api.NewServer(searcher, answerer, history, log.WithField("component", "api"))

	httpServer := &http.Server{
		Addr:         appCfg.API.ListenAddr,
		Handler:      server,
		ReadTimeout:  appCfg.API.ReadTimeout,
		WriteTimeout: appCfg.API.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Infof("HTTP API listening on %s", appCfg.API.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server error: %v", err)
	}
	log.Info("HTTP server stopped")
}
