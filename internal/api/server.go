package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/e3dc-mqtt-bridge/internal/bridge"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/e3dc-mqtt-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds how long a client may take to send request
// headers.
const readHeaderTimeout = 5 * time.Second

// MetricsProvider supplies bridge counters for the health and metrics
// endpoints. *bridge.Bridge satisfies it.
type MetricsProvider interface {
	GetMetrics() bridge.BridgeMetrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   MetricsProvider
	DeviceID string
	Version  string
}

// Server is the operations HTTP server.
//
// It serves two endpoints: /healthz for supervisor and uptime probes,
// and /metrics for Prometheus scrapes. Both read point-in-time bridge
// snapshots and never block the polling loop.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	bridge   MetricsProvider
	deviceID string
	version  string
	registry *prometheus.Registry
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge metrics provider is required")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(deps.Bridge, deps.DeviceID),
		collectors.NewGoCollector(),
	)

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		bridge:   deps.Bridge,
		deviceID: deps.DeviceID,
		version:  deps.Version,
		registry: registry,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped
// with Close().
//
// Parameters:
//   - ctx: Context for startup (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// healthResponse is the /healthz document.
type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	DeviceID        string `json:"device_id"`
	DeviceConnected bool   `json:"device_connected"`
	BrokerConnected bool   `json:"broker_connected"`
	StatusPolls     uint64 `json:"status_polls"`
	StatisticsPolls uint64 `json:"statistics_polls"`
}

// handleHealthz returns the bridge health status. The response is
// always 200; "degraded" in the status field means a connection is
// down and the process is about to exit and restart.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	m := s.bridge.GetMetrics()

	status := "ok"
	if !m.DeviceConnected || !m.BrokerConnected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:          status,
		Version:         s.version,
		DeviceID:        s.deviceID,
		DeviceConnected: m.DeviceConnected,
		BrokerConnected: m.BrokerConnected,
		StatusPolls:     m.StatusPolls,
		StatisticsPolls: m.StatisticsPolls,
	})
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}
