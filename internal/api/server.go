// Package api provides the HTTP REST surface for Beamline Core.
//
// It exposes scan control (start, stop, status) and collection
// bookkeeping reads to the beamline GUI and to queue tooling.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mxbeam/beamline-core/internal/deposition"
	"github.com/mxbeam/beamline-core/internal/gridscan"
	"github.com/mxbeam/beamline-core/internal/infrastructure/config"
	"github.com/mxbeam/beamline-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Runner  *gridscan.Runner
	Store   *deposition.Store
	Version string
}

// Server is the HTTP API server for Beamline Core.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	runner  *gridscan.Runner
	store   *deposition.Store
	version string
	started time.Time
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("scan runner is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("deposition store is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		runner:  deps.Runner,
		store:   deps.Store,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
