package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alxayo/streamcast/internal/auth"
	"github.com/alxayo/streamcast/internal/bufpool"
	"github.com/alxayo/streamcast/internal/dumpsink"
	"github.com/alxayo/streamcast/internal/hooks"
	"github.com/alxayo/streamcast/internal/registry"
	"github.com/alxayo/streamcast/internal/source"
	"github.com/alxayo/streamcast/internal/stats"
)

// Config holds server configuration knobs, mapped from cliConfig once flags
// have been parsed and validated.
type Config struct {
	ListenAddr   string
	LogLevel     string
	DefaultMount source.Config
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Server binds the streaming core's registry, scheduler, hooks, and sinks to
// an HTTP(S) transport: PUT admits a producer onto a mount, GET admits a
// listener. It mirrors the teacher's Server shape (Start/Stop/Addr, an
// accept-style lifecycle) adapted from a raw TCP accept loop to net/http.
type Server struct {
	cfg     Config
	log     *slog.Logger
	reg     *registry.Registry
	stats   *stats.MemorySink
	dump    dumpsink.Sink
	hookMgr *hooks.Manager
	auth    auth.Chain
	pool    *bufpool.Pool

	httpSrv *http.Server
	ln      net.Listener

	mu       sync.Mutex
	closing  bool
	sourceWG sync.WaitGroup
}

// New creates a new, unstarted Server.
func New(cfg Config, log *slog.Logger, hookMgr *hooks.Manager, dump dumpsink.Sink, authChain auth.Chain) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:     cfg,
		log:     log,
		reg:     registry.New(),
		stats:   stats.NewMemorySink(),
		dump:    dump,
		hookMgr: hookMgr,
		auth:    authChain,
		pool:    bufpool.New(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleMount)
	s.httpSrv = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return s
}

// Start begins listening and serving in a background goroutine. It's safe
// to call only once; repeated calls return an error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http serve error", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address (nil if not started).
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop gracefully shuts down the HTTP transport, then waits for every
// active source's listener loop to drain before returning.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.ln == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http shutdown error", "err", err)
	}

	s.reg.Iter(func(src *source.Source) bool {
		src.BeginDraining()
		return true
	})
	s.sourceWG.Wait()

	if s.hookMgr != nil {
		if err := s.hookMgr.Close(); err != nil {
			s.log.Error("hook manager close error", "err", err)
		}
	}
	if s.dump != nil {
		if err := s.dump.Close(); err != nil {
			s.log.Error("dump sink close error", "err", err)
		}
	}
	return nil
}
