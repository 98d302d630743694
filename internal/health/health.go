// SPDX-License-Identifier: MIT

// Package health provides health and readiness checks for the bridge daemon.
// It supports Docker HEALTHCHECK and Kubernetes probes with per-component status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sun-lab-nbb/axtl/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health performs a health check (liveness probe)
// Returns healthy as long as the process is alive; verbose adds components.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}

	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runCheckers(ctx)
	}

	return resp
}

// Ready performs a readiness check (readiness probe)
// Ready is false when any checker reports unhealthy.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks, resp.Status = m.runCheckers(ctx)
	if resp.Status == StatusUnhealthy {
		resp.Ready = false
	}

	return resp
}

func (m *Manager) runCheckers(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy

	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}

	return checks, status
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// AvailabilityPort is the slice of the serial port surface the checker needs.
type AvailabilityPort interface {
	Available() (int, error)
}

// PortChecker reports whether the serial port still answers availability polls.
type PortChecker struct {
	name string
	port AvailabilityPort
}

// NewPortChecker creates a checker backed by the given port.
func NewPortChecker(name string, port AvailabilityPort) *PortChecker {
	return &PortChecker{name: name, port: port}
}

func (c *PortChecker) Name() string {
	return c.name
}

func (c *PortChecker) Check(ctx context.Context) CheckResult {
	if c.port == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "no port attached",
			Message: c.name,
		}
	}

	pending, err := c.port.Available()
	if err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d bytes pending", pending),
	}
}

// LastExchangeChecker reports on the most recent packet exchange.
// A bridge that has never exchanged is degraded, not unhealthy: quiet
// peers are normal right after startup.
type LastExchangeChecker struct {
	maxAge          time.Duration
	getLastExchange func() (time.Time, string)
}

// NewLastExchangeChecker creates a checker for the bridge exchange loop.
// getLastExchange returns the time of the last completed exchange and the
// last error message, empty when the exchange succeeded.
func NewLastExchangeChecker(maxAge time.Duration, getLastExchange func() (time.Time, string)) *LastExchangeChecker {
	return &LastExchangeChecker{
		maxAge:          maxAge,
		getLastExchange: getLastExchange,
	}
}

func (c *LastExchangeChecker) Name() string {
	return "last_exchange"
}

func (c *LastExchangeChecker) Check(ctx context.Context) CheckResult {
	lastExchange, lastError := c.getLastExchange()

	if lastExchange.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no exchange completed yet",
		}
	}

	if lastError != "" {
		return CheckResult{
			Status:  StatusDegraded,
			Error:   lastError,
			Message: "last exchange failed",
		}
	}

	if c.maxAge > 0 && time.Since(lastExchange) > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last exchange over %s ago", c.maxAge),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "last exchange successful",
	}
}
