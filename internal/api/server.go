package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/device-console/internal/auth"
	"github.com/nerrad567/device-console/internal/console"
	"github.com/nerrad567/device-console/internal/infrastructure/config"
	"github.com/nerrad567/device-console/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by components /health reports on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Session  config.SessionConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Console  *console.Service
	Guard    *auth.Guard
	Hub      *Hub     // optional; /ws answers 503 without it
	Renderer Renderer // defaults to JSONRenderer

	// Checks maps a component name to its health check. "database" is
	// expected; others (mqtt, influxdb) are reported when present.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP front end of the device console.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg      config.APIConfig
	sessCfg  config.SessionConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	console  *console.Service
	guard    *auth.Guard
	hub      *Hub
	renderer Renderer
	checks   map[string]HealthChecker
	version  string

	handler http.Handler
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called; Handler() is usable
// immediately.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Console == nil {
		return nil, errors.New("console service is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("session guard is required")
	}

	renderer := deps.Renderer
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	if deps.Session.CookieName == "" {
		deps.Session.CookieName = defaultCookieName
	}

	s := &Server{
		cfg:      deps.Config,
		sessCfg:  deps.Session,
		wsCfg:    deps.WS,
		logger:   deps.Logger.With("component", "api"),
		console:  deps.Console,
		guard:    deps.Guard,
		hub:      deps.Hub,
		renderer: renderer,
		checks:   deps.Checks,
		version:  deps.Version,
	}
	s.handler = s.buildRouter()

	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in a background goroutine. Bind
// errors (port in use, bad address) are returned directly.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", addr)
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
