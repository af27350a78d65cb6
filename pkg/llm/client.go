package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"search-scraper/pkg/config"
	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

// Client talks to a local Ollama server, both through langchaingo for
// generation and directly for the management endpoints langchaingo does
// not cover (model listing, liveness).
type Client struct {
	host         string
	model        string
	temperature  float64
	timeout      time.Duration
	maxCtxTokens int
	systemPrompt string
	llm          *ollama.LLM
	hc           *http.Client
	log          *logrus.Entry
}

// NewClient builds a Client from the Ollama section of the app config
func NewClient(cfg config.OllamaConfig, logger *logrus.Entry) (*Client, error) {
	host := strings.TrimRight(cfg.Host, "/")

	llmClient, err := ollama.New(
		ollama.WithServerURL(host),
		ollama.WithModel(cfg.DefaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating ollama client for %s: %w", utils.ErrLLMBackend, host, err)
	}

	return &Client{
		host:         host,
		model:        cfg.DefaultModel,
		temperature:  cfg.Temperature,
		timeout:      cfg.Timeout,
		maxCtxTokens: cfg.MaxContextTokens,
		systemPrompt: cfg.SystemPrompt,
		llm:          llmClient,
		hc:           &http.Client{Timeout: 5 * time.Second},
		log:          logger,
	}, nil
}

// Model returns the default model name used when a call does not name one.
func (c *Client) Model() string { return c.model }

// Status reports whether the Ollama server is up and responding
func (c *Client) Status(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debugf("Ollama status check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ListModels queries the server for the models it has pulled
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing models from %s: %w", utils.ErrLLMBackend, c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: listing models: HTTP %d: %s", utils.ErrLLMBackend, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON tags response: %w", utils.ErrParsing, err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	c.log.Debugf("Ollama reports %d models", len(names))
	return names, nil
}

// Generate sends a raw prompt to the model and returns the completion.
// An empty model selects the client default
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: generation failed: %w", utils.ErrLLMBackend, err)
	}
	return out, nil
}

// Ask answers a question grounded on search results. The results (plus any
// enriched page content) are budgeted into the context window, wrapped in
// the system prompt, and sent to the model
func (c *Client) Ask(ctx context.Context, question string, results []models.SearchResult, pages []models.PageContent, model string) (*models.Answer, error) {
	searchCtx, err := BuildContext(results, pages, c.maxCtxTokens)
	if err != nil {
		return nil, err
	}

	prompt := FullPrompt(SystemPrompt(c.systemPrompt), searchCtx, question)
	c.log.WithFields(logrus.Fields{
		"results":       len(results),
		"pages":         len(pages),
		"prompt_tokens": CountTokens(prompt),
	}).Debug("Sending grounded prompt to Ollama")

	text, err := c.Generate(ctx, prompt, model)
	if err != nil {
		return nil, err
	}

	used := model
	if used == "" {
		used = c.model
	}

	sources := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			sources = append(sources, r.URL)
		}
	}

	return &models.Answer{
		Query:       question,
		Model:       used,
		Text:        strings.TrimSpace(text),
		Sources:     sources,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
