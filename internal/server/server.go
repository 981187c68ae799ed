// Package server provides the operations HTTP server: health and readiness
// checks, Prometheus metrics and a read-only view of each monitor's job
// history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/modemwatch/internal/monitor"
	"github.com/HerbHall/modemwatch/internal/version"
)

// Source is a monitored device as the server sees it.
type Source interface {
	DeviceID() string
	Ready() bool
	History() []monitor.JobRunSummary
}

// Server is the operations HTTP server.
type Server struct {
	httpServer *http.Server
	sources    map[string]Source
	logger     *zap.Logger
	mux        *http.ServeMux
	limiter    *clientLimiter
	infra      map[string]bool
}

// route is one registered endpoint. Infra routes (health, readiness and
// metrics) are exempt from rate limiting and request logging.
type route struct {
	pattern string
	handler http.HandlerFunc
	infra   bool
}

// New creates a server on cfg.Addr exposing sources.
func New(cfg Config, logger *zap.Logger, sources ...Source) *Server {
	s := &Server{
		sources: make(map[string]Source, len(sources)),
		logger:  logger,
		mux:     http.NewServeMux(),
		limiter: newClientLimiter(cfg.RateLimit, cfg.RateBurst),
		infra:   make(map[string]bool),
	}
	for _, src := range sources {
		s.sources[src.DeviceID()] = src
	}

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if rt.infra {
			s.infra[rt.pattern] = true
		} else {
			h = s.limited(h)
		}
		s.mux.Handle(rt.pattern, h)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           withRequestID(s.observe(s.recoverPanics(withHeaders(s.mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() []route {
	return []route{
		{pattern: "GET /healthz", handler: s.handleHealthz, infra: true},
		{pattern: "GET /readyz", handler: s.handleReadyz, infra: true},
		{pattern: "GET /metrics", handler: promhttp.Handler().ServeHTTP, infra: true},

		{pattern: "GET /api/v1/health", handler: s.handleHealth},
		{pattern: "GET /api/v1/devices", handler: s.handleDevices},
		{pattern: "GET /api/v1/devices/{id}/history", handler: s.handleHistory},
		{pattern: "GET /api/v1/devices/{id}/verdict", handler: s.handleVerdict},
		{pattern: "GET /", handler: s.handleNotFound},
	}
}

// Handler returns the server's middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz reports ready once every monitor has completed setup.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	for id, src := range s.sources {
		if !src.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  "monitor " + id + " is not set up",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version map[string]string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "modemwatch",
		Version: version.Map(),
	})
}

// DeviceResponse summarizes one monitored device.
type DeviceResponse struct {
	ID         string                 `json:"id"`
	Ready      bool                   `json:"ready"`
	HistoryLen int                    `json:"history_len"`
	LastRun    *monitor.JobRunSummary `json:"last_run,omitempty"`
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	out := make([]DeviceResponse, 0, len(s.sources))
	for id, src := range s.sources {
		h := src.History()
		d := DeviceResponse{ID: id, Ready: src.Ready(), HistoryLen: len(h)}
		if len(h) > 0 {
			d.LastRun = &h[len(h)-1]
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, src.History())
}

// VerdictResponse is the reboot heuristic applied to the current history.
type VerdictResponse struct {
	Device string          `json:"device"`
	Window monitor.Verdict `json:"verdict"`
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	src, ok := s.source(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, VerdictResponse{
		Device: src.DeviceID(),
		Window: monitor.Evaluate(src.History()),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, http.StatusNotFound, "no such endpoint")
}

func (s *Server) source(w http.ResponseWriter, r *http.Request) (Source, bool) {
	id := r.PathValue("id")
	src, ok := s.sources[id]
	if !ok {
		writeProblem(w, r, http.StatusNotFound, fmt.Sprintf("device %q is not monitored", id))
		return nil, false
	}
	return src, true
}
