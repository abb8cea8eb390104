// Package api serves the question-answering system over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studyowl/coursechat/internal/index"
	"github.com/studyowl/coursechat/internal/rag"
)

// QueryService is the slice of the RAG system the API exposes.
type QueryService interface {
	Query(ctx context.Context, query, sessionID string) (rag.Answer, error)
	NewSession(oldSessionID string) string
	DeleteSession(sessionID string)
	GetStats(ctx context.Context) (index.Stats, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	System    QueryService // Required
	RateBurst int          // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.System == nil {
		return nil, errors.New("query service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{system: cfg.System, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/sessions", h.createSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.deleteSession)
	mux.HandleFunc("GET /api/v1/courses", h.courseStats)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var wrapped http.Handler = mux
	wrapped = rateLimitMiddleware(rl, logger)(wrapped)
	wrapped = loggingMiddleware(logger)(wrapped)
	wrapped = recoveryMiddleware(logger)(wrapped)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", h.health)
	topMux.Handle("/", wrapped)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
