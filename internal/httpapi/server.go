// Package httpapi is the JSON surface of the service: record create/list,
// analytics views, the assistant chat, health, metrics and the snapshot
// stream.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"opsdash/internal/metrics"
	"opsdash/internal/storage"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 5 * time.Second
)

// Answerer is the assistant as seen by the chat endpoint.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

type Options struct {
	// FrontendURL is the single origin granted CORS access.
	FrontendURL string
	// Location decides calendar days in analytics views.
	Location  *time.Location
	UnitPrice float64
	Assistant Answerer
	// Stream serves GET /api/stream when set.
	Stream  http.Handler
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Clock   func() time.Time
}

type Server struct {
	store storage.Store
	opts  Options
	log   *zap.Logger
	mux   *http.ServeMux
}

func New(store storage.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Server{store: store, opts: opts, log: opts.Logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	if s.opts.Stream != nil {
		s.mux.Handle("GET /api/stream", s.opts.Stream)
	}
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
	s.mux.HandleFunc("POST /api/{kind}", s.handleCreate)
	s.mux.HandleFunc("GET /api/{kind}", s.handleList)
	s.mux.HandleFunc("GET /api/{kind}/view", s.handleView)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the mux wrapped in request logging, metrics and CORS.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.withCORS(s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	dbNow, err := s.store.Now(ctx)
	if err != nil {
		s.log.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": dbNow.UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData is the success envelope of the record endpoints.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

// writeError is the failure envelope of the record endpoints.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
