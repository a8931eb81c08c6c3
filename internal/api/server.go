// Package api provides the HTTP REST API and WebSocket entry point for
// Arena Core.
//
// It exposes device registry reads, device command publishing, match
// lifecycle operations and the WebSocket upgrade used by player clients.
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

	"github.com/arenalink/arena-core/internal/command"
	"github.com/arenalink/arena-core/internal/device"
	"github.com/arenalink/arena-core/internal/hub"
	"github.com/arenalink/arena-core/internal/infrastructure/config"
	"github.com/arenalink/arena-core/internal/infrastructure/logging"
	"github.com/arenalink/arena-core/internal/infrastructure/mqtt"
	"github.com/arenalink/arena-core/internal/match"
	"github.com/arenalink/arena-core/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Logs     device.LogRepository
	Commands *command.Publisher
	Matches  *match.Manager
	Hub      *hub.Hub
	Session  *session.Router
	MQTT     *mqtt.Client // optional; device commands fail without it
	Version  string

	// DefaultCountdown is the countdown length applied when a create
	// request does not specify one (seconds).
	DefaultCountdown int
}

// Server is the HTTP API server for Arena Core.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	registry *device.Registry
	logs     device.LogRepository
	commands *command.Publisher
	matches  *match.Manager
	hub      *hub.Hub
	session  *session.Router
	mqtt     *mqtt.Client
	version  string

	defaultCountdown int

	server *http.Server
}

// New creates an API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Hub == nil || deps.Session == nil {
		return nil, fmt.Errorf("hub and session router are required")
	}
	if deps.Matches == nil {
		return nil, fmt.Errorf("match manager is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		registry: deps.Registry,
		logs:     deps.Logs,
		commands: deps.Commands,
		matches:  deps.Matches,
		hub:      deps.Hub,
		session:  deps.Session,
		mqtt:     deps.MQTT,
		version:  deps.Version,

		defaultCountdown: deps.DefaultCountdown,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests before closing remaining connections.
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
