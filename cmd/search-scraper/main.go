package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"search-scraper/pkg/config"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "search":
		runSearch(os.Args[2:])
	case "ask":
		runAsk(os.Args[2:])
	case "models":
		runModels(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "cache":
		runCache(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-engines":
		runListEngines(os.Args[2:])
	case "version":
		fmt.Printf("search-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `search-scraper - Search engine scraper with URL resolution and LLM grounding

Usage:
  search-scraper <command> [options]

Commands:
  search        Run a search and print deduplicated results
  ask           Answer a question grounded on fresh search results
  models        List models available on the Ollama server
  history       Show recorded searches
  cache         Inspect or clear the resolved-URL cache file
  serve         Start the HTTP API server
  mcp-server    Start MCP server for AI tool integration
  validate      Validate configuration file
  list-engines  List configured engine keys
  version       Show version info

Run 'search-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config validation error: %v", err)
	}

	return appCfg
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := newFlagSet("validate")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	engineKey := fs.String("engine", "", "Engine key to validate (optional, validates all if empty)")

	parseFlags(fs, args)

	exitCode := doValidate(*configFile, *engineKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, engineKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if engineKey != "" {
		engCfg, ok := appCfg.Engines[engineKey]
		if !ok {
			fmt.Fprintf(stderr, "Error: engine '%s' not found in config\n", engineKey)
			return 1
		}
		engWarnings, err := engCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", engineKey, err)
			return 1
		}
		for _, w := range engWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", engineKey, w)
		}
		fmt.Fprintf(stdout, "OK: Engine '%s' configuration is valid\n", engineKey)
		fmt.Fprintln(stdout, "\nConfiguration valid.")
		return 0
	}

	// Full validation covers global settings and every engine
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := make([]string, 0, len(appCfg.Engines))
	for k := range appCfg.Engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListEngines handles the list-engines subcommand
func runListEngines(args []string) {
	fs := newFlagSet("list-engines")
	configFile := fs.String("config", "config.yaml", "Path to config file")

	parseFlags(fs, args)

	exitCode := doListEngines(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doListEngines prints configured engine keys to the provided writer.
func doListEngines(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(appCfg.Engines) == 0 {
		fmt.Fprintln(stdout, "No engines configured.")
		return 0
	}

	keys := make([]string, 0, len(appCfg.Engines))
	for k := range appCfg.Engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		marker := " "
		if key == appCfg.DefaultEngine {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s  %s\n", marker, key, appCfg.Engines[key].SearchURL)
	}
	fmt.Fprintf(stdout, "\n%d engine(s) configured (* = default)\n", len(keys))
	return 0
}
