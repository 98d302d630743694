// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: health and readiness
// probes, Prometheus metrics and a bridge status endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sun-lab-nbb/axtl/internal/bridge"
	"github.com/sun-lab-nbb/axtl/internal/health"
	"github.com/sun-lab-nbb/axtl/internal/log"
)

// StatsProvider yields a snapshot of the bridge counters.
type StatsProvider interface {
	Stats() bridge.Stats
}

// Config wires the server's collaborators.
type Config struct {
	Version      string
	RateLimitRPS int
	Health       *health.Manager
	Bridge       StatsProvider
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Bridge  bridge.Stats `json:"bridge"`
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	router  chi.Router
	started time.Time
}

// New builds the router with the canonical middleware stack applied.
func New(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger)
	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimit(cfg.RateLimitRPS))
	}

	r.Get("/healthz", cfg.Health.ServeHealth)
	r.Get("/readyz", cfg.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/status", s.handleStatus)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.cfg.Bridge != nil {
		resp.Bridge = s.cfg.Bridge.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Str("event", "status.encode_error").
			Err(err).
			Msg("failed to encode status response")
	}
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully with a bounded drain window.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger := log.WithComponent("api")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "api.listen").Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Str("event", "api.shutdown.forced").Err(err).Msg("graceful shutdown failed")
		return srv.Close()
	}
	logger.Info().Str("event", "api.shutdown").Msg("http server stopped")
	<-errCh
	return nil
}
