package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"search-scraper/pkg/llm"
	"search-scraper/pkg/utils"
)

// runAsk handles the ask subcommand
func runAsk(args []string) {
	fs := newFlagSet("ask")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	query := fs.String("query", "", "Search query for gathering context (defaults to the question)")
	engine := fs.String("engine", "", "Engine key from config file")
	pages := fs.Int("pages", 1, "Number of result pages to fetch")
	model := fs.String("model", "", "Ollama model to use (prompts for selection when omitted)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: search-scraper ask [options] <question>

Search the web, then answer the question with a local Ollama model grounded
on the results.

Options:
`)
		fs.PrintDefaults()
	}
	parseFlags(fs, args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "Error: a question is required")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	client, err := llm.NewClient(appCfg.Ollama, log.WithField("component", "llm"))
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !client.Status(ctx) {
		log.Fatalf("Ollama server at %s is not responding. Is Ollama running?", appCfg.Ollama.Host)
	}

	chosenModel := *model
	if chosenModel == "" {
		chosenModel = selectModel(ctx, client)
		if chosenModel == "" {
			log.Fatal("No model selected")
		}
	}

	searchQuery := *query
	if searchQuery == "" {
		searchQuery = question
	}

	runner := &searchRunner{cfg: appCfg, log: log}
	fmt.Fprintf(os.Stderr, "Searching for %q...\n", searchQuery)
	results, err := runner.Search(ctx, searchQuery, *engine, *pages)
	if err != nil {
		log.Fatalf("Search failed (%s): %v", utils.CategorizeError(err), err)
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No search results found; answering without grounding context.")
	}

	pagesContent := enrichIfConfigured(ctx, appCfg, log, results)

	fmt.Fprintf(os.Stderr, "Generating answer with %s (%d results, %d enriched pages)...\n",
		chosenModel, len(results), len(pagesContent))

	start := time.Now()
	answer, err := client.Ask(ctx, question, results, pagesContent, chosenModel)
	if err != nil {
		log.Fatalf("Generation failed (%s): %v", utils.CategorizeError(err), err)
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(os.Stderr, "\nSources:")
		for _, src := range answer.Sources {
			fmt.Fprintf(os.Stderr, "  %s\n", src)
		}
	}
	fmt.Fprintf(os.Stderr, "\nAnswered in %v\n", time.Since(start).Round(time.Millisecond))
}

// selectModel prompts the user to pick an Ollama model by number or name
func selectModel(ctx context.Context, client *llm.Client) string {
	names, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not list models: %v\n", err)
		return ""
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "No Ollama models available. Pull one with 'ollama pull <model>'.")
		return ""
	}

	fmt.Fprintln(os.Stderr, "\nAvailable Ollama models:")
	for i, name := range names {
		fmt.Fprintf(os.Stderr, "%d. %s\n", i+1, name)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "\nSelect a model (number or name): ")
		if !scanner.Scan() {
			return ""
		}
		choice := strings.TrimSpace(scanner.Text())
		if choice == "" {
			continue
		}

		if idx, err := strconv.Atoi(choice); err == nil {
			if idx >= 1 && idx <= len(names) {
				return names[idx-1]
			}
			fmt.Fprintf(os.Stderr, "Please enter a number between 1 and %d\n", len(names))
			continue
		}

		for _, name := range names {
			if choice == name {
				return name
			}
		}
		fmt.Fprintln(os.Stderr, "Invalid selection. Please enter a valid model number or name.")
	}
}

// runModels handles the models subcommand
func runModels(args []string) {
	fs := newFlagSet("models")
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	parseFlags(fs, args)

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)

	client, err := llm.NewClient(appCfg.Ollama, log.WithField("component", "llm"))
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !client.Status(ctx) {
		log.Fatalf("Ollama server at %s is not responding. Is Ollama running?", appCfg.Ollama.Host)
	}

	names, err := client.ListModels(ctx)
	if err != nil {
		log.Fatalf("Could not list models: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No models available. Pull one with 'ollama pull <model>'.")
		return
	}

	for _, name := range names {
		marker := " "
		if name == appCfg.Ollama.DefaultModel {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	fmt.Printf("\n%d model(s) available (* = configured default)\n", len(names))
}
