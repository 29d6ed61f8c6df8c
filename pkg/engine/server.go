// Package engine implements the restspy server: one port answering
// with registered doubles, forwarding through proxies, and recording
// everything it serves. The control API rides on the same port.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/double"
	"github.com/dmrschmidt/RestSpy/pkg/logging"
	"github.com/dmrschmidt/RestSpy/pkg/metrics"
	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

// stopTimeout bounds the graceful shutdown of the HTTP server.
const stopTimeout = 5 * time.Second

// Server is one running restspy engine.
type Server struct {
	cfg       *Config
	log       *slog.Logger
	collector *metrics.Collector
	upstream  *http.Client
	handler   *Handler

	mu      sync.Mutex
	ln      net.Listener
	httpSrv *http.Server
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the operational logger. Without it the engine is
// silent.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCollector substitutes the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithUpstreamClient substitutes the HTTP client proxies forward
// through.
func WithUpstreamClient(hc *http.Client) Option {
	return func(s *Server) { s.upstream = hc }
}

// NewServer builds an engine from cfg. A nil cfg gets the defaults.
func NewServer(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg: cfg,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collector == nil {
		s.collector = metrics.NewCollector()
	}
	if s.upstream == nil {
		s.upstream = &http.Client{Timeout: 30 * time.Second}
	}

	s.handler = NewHandler(cfg.Port, spylog.NewStore(cfg.SpyCapacity), s.collector, s.upstream, s.log)
	return s
}

// Start binds the listener and begins serving. Port conflicts surface
// here; after a nil return the server answers until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding port %d: %w", s.cfg.Port, err)
	}
	s.ln = ln

	s.httpSrv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", "error", err)
		}
	}(s.httpSrv)

	s.running = true
	s.log.Info("engine started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down, letting in-flight requests finish.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	err := s.httpSrv.Shutdown(ctx)
	s.running = false
	s.log.Info("engine stopped")
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Handler exposes the engine's HTTP handler, mainly so tests can mount
// it without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RegisterDouble adds d to the served collection.
func (s *Server) RegisterDouble(d *double.Double) {
	s.handler.register(d)
}

// RegisterProxy adds p to the served collection.
func (s *Server) RegisterProxy(p *double.Proxy) {
	s.handler.register(p)
}

// SetMatchables atomically replaces the whole served collection, used
// when preloaded config is applied or reloaded.
func (s *Server) SetMatchables(ms []double.Matchable) {
	s.handler.setAll(ms)
	s.log.Info("matchables replaced", "count", len(ms))
}

// DoubleCount returns how many matchables are registered.
func (s *Server) DoubleCount() int {
	return s.handler.doubleCount()
}
