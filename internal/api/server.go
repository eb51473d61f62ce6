// Package api provides the HTTP REST API and WebSocket surfaces for the
// lockerweb core.
//
// Two audiences share the listener: the web platform (JWT-protected JSON
// endpoints plus a ticket-authenticated status stream) and the locker
// controllers themselves (a websocket endpoint and an HTTP-poll fallback,
// both guarded by a shared device key).
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

	"github.com/Drrein86/lockerweb-core/internal/dispatch"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/config"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/logging"
	"github.com/Drrein86/lockerweb-core/internal/locker"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandDispatcher is the command facade the handlers call. The
// dispatch.Dispatcher is the production implementation.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, lockerID string, cmd locker.Command, timeout time.Duration) (locker.Result, error)
}

// FleetRecorder receives the periodic fleet gauge. The InfluxDB client is
// the production implementation; nil disables recording.
type FleetRecorder interface {
	RecordFleet(total, online int)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Locker      config.LockerConfig
	Logger      *logging.Logger
	Registry    *locker.Registry
	Correlator  *dispatch.Correlator
	Dispatcher  CommandDispatcher
	Sink        locker.EventSink // if set, device events go here instead of just the hub
	Fleet       FleetRecorder    // optional fleet telemetry
	ExternalHub *Hub             // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for the lockerweb core.
//
// It manages the HTTP listener, routes, middleware, the admin WebSocket
// hub and the device endpoints. The server is created with New() and
// started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	lockerCfg  config.LockerConfig
	logger     *logging.Logger
	registry   *locker.Registry
	correlator *dispatch.Correlator
	dispatcher CommandDispatcher
	sink       locker.EventSink
	fleet      FleetRecorder
	version    string

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("locker registry is required")
	}
	if deps.Correlator == nil {
		return nil, fmt.Errorf("correlator is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		lockerCfg:  deps.Locker,
		logger:     deps.Logger,
		registry:   deps.Registry,
		correlator: deps.Correlator,
		dispatcher: deps.Dispatcher,
		sink:       deps.Sink,
		fleet:      deps.Fleet,
		version:    deps.Version,
		tickets:    newTicketStore(),
	}

	// Use externally-provided hub if available (needed when the event sink
	// fans out to both the hub and the MQTT mirror).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and the periodic
// snapshot broadcaster, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}
	if s.sink == nil {
		s.sink = s.hub
	}
	s.hub.SetSnapshotFunc(s.fleetSnapshotPayload)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	// Periodic full-fleet snapshot for subscribed admin streams
	go s.snapshotLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// snapshotLoop periodically broadcasts the full fleet snapshot so admin
// streams converge even if they missed individual events. Also feeds the
// optional fleet telemetry gauge.
func (s *Server) snapshotLoop(ctx context.Context) {
	interval := s.lockerCfg.GetSnapshotInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.BroadcastEvent(locker.EventLockerUpdate, s.fleetSnapshotPayload())
			if s.fleet != nil {
				total, online := s.registry.Count()
				s.fleet.RecordFleet(total, online)
			}
		}
	}
}

// fleetSnapshotPayload builds the locker.update payload used by both the
// periodic broadcast and the on-subscribe snapshot push.
func (s *Server) fleetSnapshotPayload() any {
	snapshot := s.registry.Snapshot()
	return map[string]any{
		"lockers": snapshot,
		"count":   len(snapshot),
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup, snapshots)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
