// Package llm grounds a local Ollama model on search results: it budgets
// result JSON into the model's context window, assembles the prompt, and
// runs generation through langchaingo.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
	"github.com/tmc/langchaingo/textsplitter"

	"search-scraper/pkg/models"
	"search-scraper/pkg/utils"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// getCodec lazily initializes the shared tokenizer codec.
// cl100k_base is an approximation for local models, close enough for budgeting
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens returns the token count for the given text.
// Returns -1 if the tokenizer is unavailable or encoding fails,
// so callers can distinguish "not available" from a real zero count
func CountTokens(text string) int {
	c, err := getCodec()
	if err != nil {
		return -1
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}

// contextEnvelope is the JSON shape handed to the model as search context.
type contextEnvelope struct {
	Results []models.SearchResult `json:"results"`
	Pages   []models.PageContent  `json:"pages,omitempty"`
}

// BuildContext serializes search results (and any enriched page content) into
// a JSON context string that fits within maxTokens. Results are dropped from
// the tail until the envelope fits; page markdown is split and truncated
// before whole pages are dropped. maxTokens <= 0 disables the budget
func BuildContext(results []models.SearchResult, pages []models.PageContent, maxTokens int) (string, error) {
	env := contextEnvelope{Results: results, Pages: pages}
	if env.Results == nil {
		env.Results = []models.SearchResult{}
	}

	out, err := marshalEnvelope(env)
	if err != nil {
		return "", err
	}
	if maxTokens <= 0 || CountTokens(out) <= maxTokens {
		return out, nil
	}

	// Page markdown dominates the budget when enrichment ran. Shrink each
	// page to a share of the budget before dropping anything
	if len(env.Pages) > 0 {
		perPage := maxTokens / (len(env.Pages) + 1)
		for i := range env.Pages {
			env.Pages[i].Markdown = TruncateToTokens(env.Pages[i].Markdown, perPage)
		}
		out, err = marshalEnvelope(env)
		if err != nil {
			return "", err
		}
		if CountTokens(out) <= maxTokens {
			return out, nil
		}
	}

	// Still over budget: drop pages from the tail, then results
	for len(env.Pages) > 0 {
		env.Pages = env.Pages[:len(env.Pages)-1]
		out, err = marshalEnvelope(env)
		if err != nil {
			return "", err
		}
		if CountTokens(out) <= maxTokens {
			return out, nil
		}
	}
	for len(env.Results) > 0 {
		env.Results = env.Results[:len(env.Results)-1]
		out, err = marshalEnvelope(env)
		if err != nil {
			return "", err
		}
		if CountTokens(out) <= maxTokens {
			return out, nil
		}
	}

	// Even the empty envelope can exceed a tiny budget; return it anyway
	return out, nil
}

func marshalEnvelope(env contextEnvelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling JSON search context: %w", utils.ErrParsing, err)
	}
	return string(b), nil
}

// TruncateToTokens shortens text to at most maxTokens tokens, splitting on
// natural boundaries so the cut does not land mid-sentence
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if CountTokens(text) <= maxTokens {
		return text
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxTokens),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithLenFunc(CountTokens),
	)
	parts, err := splitter.SplitText(text)
	if err != nil || len(parts) == 0 {
		// Crude char-based fallback, roughly 4 chars per token
		limit := maxTokens * 4
		if len(text) > limit {
			return text[:limit]
		}
		return text
	}
	return parts[0]
}

const defaultSystemPrompt = `You are a helpful AI assistant. You have been provided with web search results.
Use these search results to answer the user's question as accurately as possible.
If the search results don't contain relevant information, just say you don't know.
The search results are provided as a JSON object with results in a 'results' array.
Each result has 'title', 'url', 'content', and possibly other fields.`

// SystemPrompt returns the instructions prefixed to every grounded prompt.
// An empty custom prompt selects the built-in default
func SystemPrompt(custom string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return defaultSystemPrompt
}

// FullPrompt combines system instructions, search context, and the user's
// question into the final prompt string
func FullPrompt(systemPrompt, context, question string) string {
	return fmt.Sprintf("%s\n\nSearch Results:\n%s\n\nQuestion: %s\n\nAnswer:", systemPrompt, context, question)
}
