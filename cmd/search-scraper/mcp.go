package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/llm"
	"search-scraper/pkg/mcp"
	"search-scraper/pkg/scrape"
	"search-scraper/pkg/storage"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := newFlagSet("mcp-server")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: search-scraper mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport (for Claude Desktop)
  search-scraper mcp-server -config config.yaml

  # Start with SSE transport on port 8080
  search-scraper mcp-server -config config.yaml -transport sse -port 8080

Available MCP Tools:
  list_engines    List all configured search engines
  search          Run a search and return deduplicated results
  resolve_url     Resolve a redirect or tracking URL to its target
  ask             Answer a question grounded on fresh search results
  search_history  Search previously recorded searches
`)
	}

	parseFlags(fs, args)

	exitCode := doMcpServer(*configFile, *transport, *port, *logLevel, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(configPath, transport string, port int, logLevel string, stdout, stderr io.Writer) int {
	// Setup logger
	log := logrus.New()
	log.SetOutput(stderr) // MCP protocol uses stdout, logs go to stderr
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	// Load config
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Config validation error: %v\n", err)
		return 1
	}

	searcher := &searchRunner{cfg: appCfg, log: log}

	// Optional capabilities degrade to per-tool errors when unavailable
	var answerer mcp.Answerer
	if client, err := llm.NewClient(appCfg.Ollama, log.WithField("component", "ollama")); err != nil {
		log.Warnf("Ollama client unavailable, ask tool disabled: %v", err)
	} else {
		answerer = &serveAnswerer{cfg: appCfg, log: log, client: client}
	}

	var resolver mcp.Resolver
	if scraper, err := scrape.NewScraper(appCfg, appCfg.DefaultEngine, log); err != nil {
		log.Warnf("Resolver unavailable, resolve_url tool disabled: %v", err)
	} else {
		resolver = scraper.Resolver()
	}

	var history mcp.History
	if appCfg.StateDir == "" {
		log.Warn("state_dir not configured, search_history tool disabled")
	} else {
		store, err := storage.NewBadgerStore(appCfg.StateDir, log.WithField("component", "history"))
		if err != nil {
			log.Warnf("History store unavailable, search_history tool disabled: %v", err)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					log.Errorf("Error closing history store: %v", err)
				}
			}()
			history = store
		}
	}

	serverCfg := &mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  transport,
		Port:       port,
		Logger:     log,
		Searcher:   searcher,
		Answerer:   answerer,
		Resolver:   resolver,
		History:    history,
	}

	server, err := mcp.NewServer(serverCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}

	log.Infof("Starting MCP server (transport: %s)", transport)

	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}

	return 0
}
