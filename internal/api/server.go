// Package api exposes the local HTTP control surface: job registration and
// removal, engine status, run history and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"vesper/internal/history"
	"vesper/internal/scheduler"
	logx "vesper/pkg/logx"
)

// Config controls the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server binds the scheduler engine to HTTP handlers.
type Server struct {
	cfg    Config
	log    logx.Logger
	engine *scheduler.Service

	// Optional collaborators; nil disables the corresponding routes.
	store   *history.Store
	metrics http.Handler

	server    *http.Server
	startedAt time.Time
}

func New(cfg Config, log logx.Logger, engine *scheduler.Service) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8010"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log, engine: engine}
}

// SetHistoryStore wires the persistent run log into GET /system/history.
func (s *Server) SetHistoryStore(store *history.Store) { s.store = store }

// SetMetricsHandler mounts h at GET /metrics.
func (s *Server) SetMetricsHandler(h http.Handler) { s.metrics = h }

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	go func() {
		s.log.Info("api listening", logx.String("addr", s.cfg.Addr))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api serve error", logx.Err(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info("api shutting down")
	return s.server.Shutdown(ctx)
}
