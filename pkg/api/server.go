// Package api exposes search, grounded question answering, and search
// history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/models"
	"search-scraper/pkg/storage"
	"search-scraper/pkg/utils"
)

// Searcher runs a search against one engine.
type Searcher interface {
	Search(ctx context.Context, query, engine string, pages int) ([]models.SearchResult, error)
}

// Answerer generates answers grounded on search results.
type Answerer interface {
	Ask(ctx context.Context, question string, results []models.SearchResult, pages []models.PageContent, model string) (*models.Answer, error)
	Status(ctx context.Context) bool
}

// History is the slice of the store the server needs.
type History interface {
	storage.HistoryWriter
	storage.HistoryReader
}

// Server exposes the HTTP API. Answerer and History may be nil; the
// corresponding endpoints then report the capability as unavailable
type Server struct {
	searcher Searcher
	answerer Answerer
	history  History
	mux      *http.ServeMux
	handler  http.Handler
	log      *logrus.Entry
}

// NewServer wires handlers onto an HTTP mux
func NewServer(searcher Searcher, answerer Answerer, history History, logger *logrus.Entry) *Server {
	s := &Server{
		searcher: searcher,
		answerer: answerer,
		history:  history,
		mux:      http.NewServeMux(),
		log:      logger,
	}
	s.routes()
	s.handler = s.withRequestLogging(s.mux)
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/ask", s.handleAsk)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/history/", s.handleHistoryByID)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.answerer != nil {
		resp["ollama"] = s.answerer.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query  string `json:"query"`
	Engine string `json:"engine,omitempty"`
	Pages  int    `json:"pages,omitempty"`
}

type searchResponse struct {
	ID          string                `json:"id,omitempty"`
	Query       string                `json:"query"`
	Engine      string                `json:"engine,omitempty"`
	ResultCount int                   `json:"result_count"`
	ElapsedMS   int64                 `json:"elapsed_ms"`
	Results     []models.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := s.runSearch(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runSearch executes the search and records the outcome in history.
// History write failures are logged, not surfaced
func (s *Server) runSearch(ctx context.Context, req searchRequest) (*searchResponse, error) {
	pages := req.Pages
	if pages <= 0 {
		pages = 1
	}

	start := time.Now()
	results, err := s.searcher.Search(ctx, req.Query, req.Engine, pages)
	elapsed := time.Since(start)

	rec := &models.SearchRecordDB{
		Query:       req.Query,
		Engine:      req.Engine,
		Status:      models.SearchStatusSuccess,
		ResultCount: len(results),
		Results:     results,
		SearchedAt:  start.UTC(),
		Elapsed:     elapsed,
	}
	if err != nil {
		rec.Status = models.SearchStatusFailure
		rec.ErrorType = utils.CategorizeError(err)
		rec.Results = nil
	} else if len(results) == 0 {
		rec.Status = models.SearchStatusEmpty
	}

	var id string
	if s.history != nil {
		savedID, saveErr := s.history.SaveSearch(rec)
		if saveErr != nil {
			s.log.Warnf("Failed to record search in history: %v", saveErr)
		} else {
			id = savedID
		}
	}

	if err != nil {
		return nil, err
	}
	return &searchResponse{
		ID:          id,
		Query:       req.Query,
		Engine:      req.Engine,
		ResultCount: len(results),
		ElapsedMS:   elapsed.Milliseconds(),
		Results:     results,
	}, nil
}

type askRequest struct {
	Question   string `json:"question"`
	Query      string `json:"query,omitempty"` // Search query; defaults to the question
	Engine     string `json:"engine,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Model      string `json:"model,omitempty"`
	RenderHTML bool   `json:"render_html,omitempty"`
}

type askResponse struct {
	Answer      *models.Answer `json:"answer"`
	HTML        string         `json:"html,omitempty"`
	ResultCount int            `json:"result_count"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM backend not configured")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	query := req.Query
	if query == "" {
		query = req.Question
	}

	searchResp, err := s.runSearch(r.Context(), searchRequest{Query: query, Engine: req.Engine, Pages: req.Pages})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	answer, err := s.answerer.Ask(r.Context(), req.Question, searchResp.Results, nil, req.Model)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	resp := askResponse{Answer: answer, ResultCount: searchResp.ResultCount}
	if req.RenderHTML {
		html, renderErr := RenderMarkdown(answer.Text)
		if renderErr != nil {
			s.log.Warnf("Failed to render answer as HTML: %v", renderErr)
		} else {
			resp.HTML = html
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "search history not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}

	records, err := s.history.RecentSearches(limit)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(records),
		"searches": records,
	})
}

func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "search history not configured")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/history/"), "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	rec, err := s.history.GetSearch(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrConfigValidation):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrLLMBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
