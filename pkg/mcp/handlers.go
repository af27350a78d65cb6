package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"search-scraper/pkg/utils"
)

// handleListEngines handles the list_engines tool
func (s *Server) handleListEngines(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	engines := make([]map[string]interface{}, 0, len(s.cfg.AppConfig.Engines))

	// Get sorted keys for consistent output
	keys := make([]string, 0, len(s.cfg.AppConfig.Engines))
	for k := range s.cfg.AppConfig.Engines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		engCfg := s.cfg.AppConfig.Engines[key]
		engines = append(engines, map[string]interface{}{
			"key":              key,
			"search_url":       engCfg.SearchURL,
			"query_param":      engCfg.QueryParam,
			"results_per_page": engCfg.ResultsPerPage,
			"default":          key == s.cfg.AppConfig.DefaultEngine,
		})
	}

	result := map[string]interface{}{
		"engines":        engines,
		"default_engine": s.cfg.AppConfig.DefaultEngine,
		"config_path":    s.cfg.ConfigPath,
		"total_engines":  len(engines),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearch handles the search tool
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	engine := request.GetString("engine", "")
	pages := request.GetInt("pages", 1)
	if pages <= 0 {
		pages = 1
	}

	startTime := time.Now()
	results, err := s.cfg.Searcher.Search(ctx, query, engine, pages)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed (%s): %v", utils.CategorizeError(err), err)), nil
	}

	result := map[string]interface{}{
		"query":        query,
		"result_count": len(results),
		"results":      results,
		"elapsed_ms":   time.Since(startTime).Milliseconds(),
	}
	if engine != "" {
		result["engine"] = engine
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleResolveURL handles the resolve_url tool
func (s *Server) handleResolveURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	if s.cfg.Resolver == nil {
		return mcp.NewToolResultError("URL resolution not configured"), nil
	}

	resolved, err := s.cfg.Resolver.Resolve(ctx, rawURL)
	result := map[string]interface{}{
		"url":      rawURL,
		"resolved": resolved,
	}
	if err != nil {
		// The resolver still returns a usable fallback URL; report why
		// resolution stopped short instead of failing the call
		result["error_category"] = utils.CategorizeError(err)
		result["error"] = err.Error()
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleAsk handles the ask tool
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	if s.cfg.Answerer == nil {
		return mcp.NewToolResultError("LLM backend not configured"), nil
	}

	query := request.GetString("query", "")
	if query == "" {
		query = question
	}
	engine := request.GetString("engine", "")
	pages := request.GetInt("pages", 1)
	if pages <= 0 {
		pages = 1
	}
	model := request.GetString("model", "")

	results, err := s.cfg.Searcher.Search(ctx, query, engine, pages)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed (%s): %v", utils.CategorizeError(err), err)), nil
	}

	answer, err := s.cfg.Answerer.Ask(ctx, question, results, nil, model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed (%s): %v", utils.CategorizeError(err), err)), nil
	}

	result := map[string]interface{}{
		"question":     question,
		"answer":       answer.Text,
		"model":        answer.Model,
		"sources":      answer.Sources,
		"result_count": len(results),
		"generated_at": answer.GeneratedAt.Format(time.RFC3339),
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// historyScanLimit bounds how many stored searches one query scans.
const historyScanLimit = 500

// handleSearchHistory handles the search_history tool
func (s *Server) handleSearchHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	if s.cfg.History == nil {
		return mcp.NewToolResultError("search history not configured"), nil
	}

	maxResults := request.GetInt("max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	records, err := s.cfg.History.RecentSearches(historyScanLimit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history lookup failed: %v", err)), nil
	}

	queryLower := strings.ToLower(query)
	matches := make([]map[string]interface{}, 0)

	for _, rec := range records {
		if len(matches) >= maxResults {
			break
		}

		// Match against the recorded query first, then result titles and content
		if strings.Contains(strings.ToLower(rec.Query), queryLower) {
			matches = append(matches, map[string]interface{}{
				"id":             rec.ID,
				"query":          rec.Query,
				"searched_at":    rec.SearchedAt.Format(time.RFC3339),
				"result_count":   rec.ResultCount,
				"match_location": "query",
			})
			continue
		}

		for _, res := range rec.Results {
			matchLocation := ""
			snippetSource := ""
			if strings.Contains(strings.ToLower(res.Title), queryLower) {
				matchLocation = "title"
				snippetSource = res.Title
			} else if strings.Contains(strings.ToLower(res.Content), queryLower) {
				matchLocation = "content"
				snippetSource = res.Content
			}
			if matchLocation == "" {
				continue
			}

			matches = append(matches, map[string]interface{}{
				"id":             rec.ID,
				"query":          rec.Query,
				"searched_at":    rec.SearchedAt.Format(time.RFC3339),
				"url":            res.URL,
				"title":          res.Title,
				"snippet":        extractSnippet(snippetSource, query, 150),
				"match_location": matchLocation,
			})
			break
		}
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       matches,
		"total_matches": len(matches),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// extractSnippet extracts a snippet around the query match, slicing on rune
// boundaries so multi-byte UTF-8 characters are never split.
func extractSnippet(content, query string, maxLen int) string {
	runes := []rune(content)
	queryRunes := []rune(strings.ToLower(query))
	contentLowerRunes := []rune(strings.ToLower(content))

	// Find match position in runes
	idx := -1
	for i := 0; i <= len(contentLowerRunes)-len(queryRunes); i++ {
		if string(contentLowerRunes[i:i+len(queryRunes)]) == string(queryRunes) {
			idx = i
			break
		}
	}

	if idx == -1 {
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return content
	}

	// Calculate start and end positions in rune space
	start := idx - maxLen/2
	if start < 0 {
		start = 0
	}

	end := idx + len(queryRunes) + maxLen/2
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}

	return snippet
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
