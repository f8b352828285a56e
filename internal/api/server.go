// Package api provides the read-only HTTP REST API for zigbee-core.
//
// It exposes the device directory, per-coordinator mesh topology, and
// system health to monitoring tools and admin interfaces. All endpoints
// are GET-only; device control flows through the bridge layer, not HTTP.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/graymesh/zigbee-core/internal/bridges/zigbee"
	"github.com/graymesh/zigbee-core/internal/device"
	"github.com/graymesh/zigbee-core/internal/infrastructure/config"
	"github.com/graymesh/zigbee-core/internal/infrastructure/database"
	"github.com/graymesh/zigbee-core/internal/infrastructure/influxdb"
	"github.com/graymesh/zigbee-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Mesh exposes the read-only view of one coordinator's bridge that the
// API serves. Satisfied by *zigbee.Bridge.
type Mesh interface {
	Topology() *zigbee.Topology
	QueueDepth() int
}

// Coordinator pairs a coordinator's configuration with its live bridge view.
type Coordinator struct {
	Config config.CoordinatorConfig
	Mesh   Mesh
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Registry     *device.Registry
	Coordinators []Coordinator
	DB           *database.DB     // optional: enables the database health probe
	Influx       *influxdb.Client // optional: enables the telemetry health probe
	Version      string
}

// Server is the HTTP API server for zigbee-core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	registry     *device.Registry
	coordinators []Coordinator
	db           *database.DB
	influx       *influxdb.Client
	version      string
	server       *http.Server
	started      time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		registry:     deps.Registry,
		coordinators: deps.Coordinators,
		db:           deps.DB,
		influx:       deps.Influx,
		version:      deps.Version,
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
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to
// complete before forcing the listener closed.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}
