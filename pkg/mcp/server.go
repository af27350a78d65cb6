package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
	"search-scraper/pkg/models"
)

const (
	serverName    = "search-scraper"
	serverVersion = "1.0.0"
)

// Searcher runs a search against one engine.
type Searcher interface {
	Search(ctx context.Context, query, engine string, pages int) ([]models.SearchResult, error)
}

// Answerer generates answers grounded on search results.
type Answerer interface {
	Ask(ctx context.Context, question string, results []models.SearchResult, pages []models.PageContent, model string) (*models.Answer, error)
}

// Resolver follows a redirect-wrapped URL to its destination.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// History lists previously recorded searches.
type History interface {
	RecentSearches(limit int) ([]models.SearchRecordDB, error)
}

// ServerConfig holds configuration for the MCP server.
// Answerer, Resolver, and History are optional; their tools report the
// capability as unavailable when nil
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Searcher   Searcher
	Answerer   Answerer
	Resolver   Resolver
	History    History
}

// Server wraps the MCP server with search-scraper specific functionality
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("Searcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	// Create the MCP server
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "mcp"),
	}

	// Register all tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// list_engines - List all configured search engines
	listEnginesTool := mcp.NewTool("list_engines",
		mcp.WithDescription("List all configured search engines"),
	)
	s.mcpServer.AddTool(listEnginesTool, s.handleListEngines)

	// search - Run a search and return deduplicated records
	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Run a search query and return deduplicated results with resolved URLs"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithString("engine",
			mcp.Description("Engine key from config file (defaults to the configured default engine)"),
		),
		mcp.WithNumber("pages",
			mcp.Description("Number of result pages to fetch (default: 1)"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearch)

	// resolve_url - Follow a redirect-wrapped URL to its destination
	resolveURLTool := mcp.NewTool("resolve_url",
		mcp.WithDescription("Follow a redirect-wrapped search result URL to its real destination"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to resolve"),
		),
	)
	s.mcpServer.AddTool(resolveURLTool, s.handleResolveURL)

	// ask - Answer a question grounded on fresh search results
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Answer a question using fresh search results as grounding context"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("query",
			mcp.Description("Search query to gather context (defaults to the question)"),
		),
		mcp.WithString("engine",
			mcp.Description("Engine key from config file"),
		),
		mcp.WithNumber("pages",
			mcp.Description("Number of result pages to fetch (default: 1)"),
		),
		mcp.WithString("model",
			mcp.Description("Ollama model to use (defaults to the configured model)"),
		),
	)
	s.mcpServer.AddTool(askTool, s.handleAsk)

	// search_history - Search previously recorded searches
	searchHistoryTool := mcp.NewTool("search_history",
		mcp.WithDescription("Search previously recorded searches using text matching"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (case-insensitive substring match)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(searchHistoryTool, s.handleSearchHistory)

	s.log.Infof("Registered %d MCP tools", 5)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	return nil
}
