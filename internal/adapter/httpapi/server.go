// Package httpapi exposes the question-to-rows pipeline as a small JSON API:
// POST /query, GET /schema, GET /health. Pipeline failures are reported in
// the response payload, not as transport errors; only malformed requests and
// rate limiting use non-200 statuses.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/guillermoBallester/causeway/internal/core/service"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse mirrors the pipeline outcome. SQL is populated even when the
// validator rejected it so callers can show what was refused.
type QueryResponse struct {
	Success   bool             `json:"success"`
	SQL       string           `json:"sql,omitempty"`
	Data      []map[string]any `json:"data"`
	Columns   []string         `json:"columns"`
	RowCount  int              `json:"row_count"`
	ElapsedMS float64          `json:"elapsed_ms"`
	Error     string           `json:"error,omitempty"`
}

// Server handles the HTTP shell around the query service.
type Server struct {
	query   *service.QueryService
	logger  *slog.Logger
	limiter *ipRateLimiter
}

// NewServer creates the API server. ratePerMinute bounds POST /query calls
// per client IP; zero disables rate limiting.
func NewServer(query *service.QueryService, logger *slog.Logger, ratePerMinute int) *Server {
	var limiter *ipRateLimiter
	if ratePerMinute > 0 {
		limiter = newIPRateLimiter(ratePerMinute)
	}
	return &Server{query: query, logger: logger, limiter: limiter}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /schema", s.handleSchema)

	var query http.Handler = http.HandlerFunc(s.handleQuery)
	if s.limiter != nil {
		query = s.limiter.middleware(query)
	}
	mux.Handle("POST /query", query)

	return requestIDMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.query.Schema()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schema": schema.PromptContext()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	question := strings.TrimSpace(req.Query)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query cannot be empty"})
		return
	}

	ctx := service.WithRequestID(r.Context(), requestIDFromRequest(r))
	result, err := s.query.Ask(ctx, question)
	if err != nil {
		resp := QueryResponse{Success: false, Error: err.Error()}
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			resp.SQL = verr.SQL
		}
		s.logger.WarnContext(ctx, "query failed",
			slog.String("question", question),
			slog.String("error.message", err.Error()),
		)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Success:   true,
		SQL:       result.SQL,
		Data:      result.Rows,
		Columns:   result.Columns,
		RowCount:  result.RowCount,
		ElapsedMS: result.ElapsedMS,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
