// Package api exposes the answer pipeline and its administration
// surfaces over HTTP: a streaming ask endpoint, knowledge base CRUD,
// review queue management, and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger         *slog.Logger
	Answerer       Answerer       // Required
	KnowledgeStore KnowledgeStore // Required
	QueueStore     QueueStore     // Required
	Pool           *pgxpool.Pool  // Optional: nil degrades /ready to liveness
	APIToken       string         // Required: static bearer token
	TrustProxy     bool           // Trust X-Real-IP/X-Forwarded-For headers
	RateRPS        float64        // Rate limiter refill per IP (0 = default 1/sec)
	RateBurst      int            // Rate limiter burst per IP (0 = default 60)
}

// Server is the HTTP server for the answerdesk API.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if cfg.KnowledgeStore == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.QueueStore == nil {
		return nil, errors.New("queue store is required")
	}
	if cfg.APIToken == "" {
		return nil, errors.New("api token is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &askHandler{svc: cfg.Answerer, logger: logger}
	kh := &knowledgeHandler{store: cfg.KnowledgeStore, logger: logger}
	qh := &queueHandler{store: cfg.QueueStore, knowledge: cfg.KnowledgeStore, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/ask", ah.ask)

	mux.HandleFunc("POST /api/knowledge", kh.create)
	mux.HandleFunc("GET /api/knowledge", kh.list)
	mux.HandleFunc("PUT /api/knowledge/{id}", kh.update)
	mux.HandleFunc("DELETE /api/knowledge/{id}", kh.remove)

	mux.HandleFunc("GET /api/queue", qh.listPending)
	mux.HandleFunc("POST /api/queue/{id}/resolve", qh.resolve)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack (outermost first):
	//   Recovery → Logging → RateLimit → Auth → Routes
	// Auth runs last so unauthorized requests are rejected before any
	// handler, and still rate-limited and logged.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.APIToken, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass auth and rate limiting.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
