package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/robojar-core/internal/command"
	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/history"
	"github.com/nerrad567/robojar-core/internal/infrastructure/config"
	"github.com/nerrad567/robojar-core/internal/infrastructure/logging"
	"github.com/nerrad567/robojar-core/internal/ledger"
	"github.com/nerrad567/robojar-core/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LedgerReader reads ledger rows. *ledger.Ledger satisfies it.
type LedgerReader interface {
	Entries(path string) ([]ledger.Entry, error)
}

// HealthChecker is implemented by the optional infrastructure clients
// (MQTT, InfluxDB, SQLite).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Executor *command.Executor

	// Ledger and LedgerPaths back GET /ledger/{log}. Optional.
	Ledger      LedgerReader
	LedgerPaths ledger.Paths

	// History backs GET /history/{device}. Optional.
	History history.Repository

	// Metrics backs GET /metrics and request timing. Optional.
	Metrics *metrics.Metrics

	// Hub is shared with the events bus so transitions reach WebSocket
	// clients. When nil the server creates its own.
	Hub *Hub

	// Checks are reported by GET /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for the rig.
//
// It is created with New and started with Start.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	exec        *command.Executor
	ctrl        *controller.Controller
	ledger      LedgerReader
	ledgerPaths ledger.Paths
	history     history.Repository
	metrics     *metrics.Metrics
	checks      map[string]HealthChecker
	version     string

	hub         *Hub
	externalHub bool
	server      *http.Server
	addr        net.Addr
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Logger and Executor are required; the rest are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("command executor is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		exec:        deps.Executor,
		ctrl:        deps.Executor.Controller(),
		ledger:      deps.Ledger,
		ledgerPaths: deps.LedgerPaths,
		history:     deps.History,
		metrics:     deps.Metrics,
		checks:      deps.Checks,
		version:     deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The listener is bound before Start returns, so a port in use is
// reported here.
//
// Parameters:
//   - ctx: Parent context for the hub; Close cancels it independently
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()
	s.logger.Info("API server listening", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
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
