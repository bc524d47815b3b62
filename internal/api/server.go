// Package api implements the public HTTP surface: register/detach a
// tool server, submit a query (buffered or streamed), and inspect fleet
// health. One handler per concern, mounted on a plain net/http.ServeMux.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolfleet/orchestrator/internal/agent"
	"github.com/toolfleet/orchestrator/internal/orchestrator"
)

// timeFormat is the wire format for timestamps in JSON responses.
const timeFormat = time.RFC3339

// Server owns the HTTP mux, the orchestrator, and the agent driver that
// together answer every §6 endpoint.
type Server struct {
	orch             *orchestrator.Orchestrator
	driver           *agent.Driver
	logger           *slog.Logger
	heartbeatTimeout time.Duration

	httpServer   *http.Server
	httpListener net.Listener
}

// Config bundles the dependencies a Server needs to start.
type Config struct {
	Host             string
	HTTPPort         int
	Orchestrator     *orchestrator.Orchestrator
	Driver           *agent.Driver
	HeartbeatTimeout time.Duration
	Logger           *slog.Logger
}

// New builds a Server. The mux is built and the listener opened in Start.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		orch:             cfg.Orchestrator,
		driver:           cfg.Driver,
		logger:           cfg.Logger.With("component", "api"),
		heartbeatTimeout: cfg.HeartbeatTimeout,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/remove_service", s.handleRemoveService)
	mux.HandleFunc("/service_info", s.handleServiceInfo)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/query_stream", s.handleQueryStream)
	return mux
}

// Start opens the listener and serves until ctx is done or Stop is called.
// The listener is opened synchronously so a bind failure surfaces to the
// caller immediately; serving itself happens in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.Handler = s.mux()

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpListener = listener

	s.logger.Info("starting http server", "addr", s.httpServer.Addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}

// Stop gracefully shuts the HTTP server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("api: response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
