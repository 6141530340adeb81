package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/livefeed/internal/feedstore"
	"github.com/rickgao/livefeed/internal/metrics"
	"github.com/rickgao/livefeed/internal/poller"
	"github.com/rickgao/livefeed/internal/visibility"
)

// Feed is the live feed surface the relay serves.
type Feed interface {
	ID() string
	Reader() feedstore.Reader
	Enabled() bool
	SetEnabled(enabled bool)
}

// Dashboard is the poller state the relay serves.
type Dashboard interface {
	Latest() (poller.DashboardSnapshot, bool)
	LastError() error
	LastPoll() time.Time
}

// Pinger checks a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds relay settings.
type Config struct {
	Addr         string
	WriteTimeout time.Duration // per WebSocket frame
	PingInterval time.Duration // WebSocket keepalive
	MetricsPath  string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		MetricsPath:  "/metrics",
	}
}

// Server relays a live feed to browsers.
type Server struct {
	cfg    Config
	logger *slog.Logger

	feed      Feed
	presence  *visibility.Presence
	dashboard Dashboard
	db        Pinger
	metrics   *metrics.Registry

	mux        *http.ServeMux
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithPresence makes every stream connection hold a lease on p.
func WithPresence(p *visibility.Presence) Option {
	return func(s *Server) { s.presence = p }
}

// WithDashboard serves the poller state at /api/dashboard.
func WithDashboard(d Dashboard) Option {
	return func(s *Server) { s.dashboard = d }
}

// WithDatabase adds the database to health checks.
func WithDatabase(db Pinger) Option {
	return func(s *Server) { s.db = db }
}

// WithMetrics serves reg at /metrics and records request metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) { s.metrics = reg }
}

// New creates a relay server for feed.
func New(cfg Config, feed Feed, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaults.MetricsPath
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		feed:   feed,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	var handler http.Handler = s.mux
	if s.metrics != nil {
		handler = metrics.HTTPMiddleware(s.metrics)(handler)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /feed/latest", s.handleLatest)
	s.mux.HandleFunc("GET /feed/stream", s.handleStream)
	s.mux.HandleFunc("GET /feed/enabled", s.handleGetEnabled)
	s.mux.HandleFunc("POST /feed/enabled", s.handleSetEnabled)

	if s.dashboard != nil {
		s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	}
	if s.metrics != nil {
		s.mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	}
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting relay server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down relay server")
	return s.httpServer.Shutdown(ctx)
}
