// Package api provides the HTTP status API for Halcyon Core.
//
// It exposes the approval workflow for operators: pending requests, the
// decision log, and process health. The API is read-only; commands enter
// the system over MQTT, never HTTP.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/halcyon-home/halcyon-core/internal/audit"
	"github.com/halcyon-home/halcyon-core/internal/coordinator"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/config"
	"github.com/halcyon-home/halcyon-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// PendingSource exposes the coordinator's outstanding requests.
type PendingSource interface {
	Pending() []coordinator.PendingSnapshot
}

// HealthFunc probes one component. A nil error means healthy.
type HealthFunc func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Pending PendingSource
	Audit   audit.Repository
	Version string

	// Checks are per-component health probes reported by /health.
	Checks map[string]HealthFunc
}

// Server is the HTTP status API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	pending PendingSource
	audit   audit.Repository
	version string
	checks  map[string]HealthFunc

	server *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pending == nil {
		return nil, fmt.Errorf("pending source is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		pending: deps.Pending,
		audit:   deps.Audit,
		version: deps.Version,
		checks:  deps.Checks,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	readTimeout := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("status API listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting briefly for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status API shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status API: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
