package api

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/elan2mqtt/internal/audit"
	"github.com/nerrad567/elan2mqtt/internal/bridge"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionSource reports the bridge state. *bridge.Supervisor implements it.
type SessionSource interface {
	Snapshot() bridge.Snapshot
	Registry() *device.Registry
}

// HealthChecker is a dependency reported by /api/v1/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Session SessionSource

	// Topics is used to list the discovery documents of each device.
	Topics mqtt.Topics

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Audit backs /api/v1/commands. Nil disables the endpoint.
	Audit audit.Repository

	// Checks are run by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the operations HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	session  SessionSource
	topics   mqtt.Topics
	gatherer prometheus.Gatherer
	audit    audit.Repository
	checks   map[string]HealthChecker
	version  string
	started  time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session source is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		session:  deps.Session,
		topics:   deps.Topics,
		gatherer: deps.Gatherer,
		audit:    deps.Audit,
		checks:   maps.Clone(deps.Checks),
		version:  deps.Version,
		started:  time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. A bind
// failure is returned synchronously.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
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
