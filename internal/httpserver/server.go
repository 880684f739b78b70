// Package httpserver exposes the indexer's health and metrics endpoints.
// It replaces the teacher's dashboard API server (internal/api), which
// served a WebSocket feed and static web dashboard for a trading UI that
// has no equivalent in a headless indexer; only its http.Server shape
// (bounded timeouts, graceful Stop) survives here.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the indexer's pipelines are keeping up.
type HealthChecker interface {
	Watermarks() map[string]int64
}

// Server serves /healthz and /metrics.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// New builds an HTTP server bound to addr. gatherer is the Prometheus
// registry to expose at /metrics (see internal/metrics.Registry.Gatherer).
func New(addr string, gatherer prometheus.Gatherer, health HealthChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", newHealthHandler(health))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "httpserver"),
	}
}

// Start runs the server until it is stopped. Blocks.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func newHealthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		watermarks := health.Watermarks()
		fmt.Fprintf(w, `{"status":"ok","pipelines":%d}`, len(watermarks))
	}
}
