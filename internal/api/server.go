package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/auth"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/config"
	"github.com/nerrad567/rail-logic-core/internal/infrastructure/logging"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// componentCheckTimeout bounds each component check of GET /health.
const componentCheckTimeout = 2 * time.Second

// Dispatcher is the part of dispatcher.Manager the API drives.
type Dispatcher interface {
	Tracks() []interlock.TrackSnapshot
	Routes() []interlock.RouteSnapshot
	Feedbacks() []interlock.FeedbackSnapshot
	Accessories() []interlock.AccessorySnapshot
	Locos() []loco.Snapshot

	SetTrackBlocked(id interlock.ObjectID, blocked bool) error
	ExecuteRoute(id interlock.ObjectID) error
	ReleaseRoute(id interlock.ObjectID) error
	SetFeedbackState(id interlock.ObjectID, occupied bool) error

	LocoAutoMode(id interlock.ObjectID, mode loco.AutoModeType) error
	LocoManualMode(ctx context.Context, id interlock.ObjectID) error
	LocoRelease(id interlock.ObjectID) error
	SetLocoTrack(id, trackID interlock.ObjectID, o interlock.Orientation) error
	LocoSpeed(id interlock.ObjectID, speed loco.Speed) error
	LocoFunction(id interlock.ObjectID, nr uint8, on bool) error
	LocoTimetable(id, route, followUp interlock.ObjectID) error
	LocoClearTimetable(id interlock.ObjectID) error

	Booster() interlock.BoosterState
	SetBooster(state interlock.BoosterState)
	ControlHealthy() bool
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB) whose status GET /health reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Auth       *auth.Authenticator
	Dispatcher Dispatcher
	Logger     *logging.Logger

	// Hub is shared with the dispatcher, which broadcasts through it.
	// If nil the server creates its own.
	Hub *Hub

	// Components are checked by GET /health, keyed by name.
	Components map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for Rail Logic Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	auth       *auth.Authenticator
	dispatcher Dispatcher
	logger     *logging.Logger
	components map[string]HealthChecker
	version    string
	hub        *Hub
	tickets    *ticketStore
	server     *http.Server
	listener   net.Listener
	cancel     context.CancelFunc // stops the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger, the authenticator or the dispatcher is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:        deps.Config,
		auth:       deps.Auth,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		components: deps.Components,
		version:    deps.Version,
		hub:        hub,
		tickets:    newTicketStore(),
	}, nil
}

// Hub returns the WebSocket hub the server relays events through.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine. The
// server can be stopped with Close().
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

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
