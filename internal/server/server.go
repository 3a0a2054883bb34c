// Package server exposes the price history to the dashboard over a small
// JSON API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/history"
	"github.com/sells-group/copper-cli/internal/ingest"
	"github.com/sells-group/copper-cli/internal/model"
)

// Engine is the orchestrator surface the API needs.
type Engine interface {
	Snapshot() ingest.Snapshot
	TriggerAsync(ctx context.Context) bool
}

// Server serves the dashboard API.
type Server struct {
	engine Engine
	// base outlives requests; cycles started over HTTP run with it.
	base   context.Context
	router chi.Router
}

// New builds the router. Cycles triggered through POST /api/ingest run with
// base so they survive the request.
func New(base context.Context, engine Engine, allowedOrigins []string) *Server {
	s := &Server{engine: engine, base: base}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/history", s.history)
		r.Get("/summary", s.summary)
		r.Get("/status", s.status)
		r.Post("/ingest", s.ingest)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Snapshot().History
	if region := r.URL.Query().Get("region"); region != "" {
		h = history.Region(h, region)
	}
	if h == nil {
		h = []model.PriceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": h, "count": len(h)})
}

type summaryResponse struct {
	Summaries []model.Summary `json:"summaries"`
	Insight   string          `json:"insight,omitempty"`
	Forecast  string          `json:"forecast,omitempty"`
	LastRun   time.Time       `json:"last_run,omitzero"`
}

func (s *Server) summary(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	sums := snap.Summaries
	if sums == nil {
		sums = []model.Summary{}
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Summaries: sums,
		Insight:   snap.Insight,
		Forecast:  snap.Forecast,
		LastRun:   snap.LastRun,
	})
}

type statusResponse struct {
	Status    model.IngestionStatus `json:"status"`
	LastRun   time.Time             `json:"last_run,omitzero"`
	LastError string                `json:"last_error,omitempty"`
	LastAdded int                   `json:"last_added"`
	Records   int                   `json:"records"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    snap.Status,
		LastRun:   snap.LastRun,
		LastError: snap.LastError,
		LastAdded: snap.LastAdded,
		Records:   len(snap.History),
	})
}

func (s *Server) ingest(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.TriggerAsync(s.base) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "ingestion not idle",
			"status": string(s.engine.Snapshot().Status),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
