package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/muurk/jpegmirror/internal/handler"
	"github.com/muurk/jpegmirror/internal/logging"
	"github.com/muurk/jpegmirror/internal/workerpool"
)

// ErrAlreadyRunning is returned by Run while another Run is in progress
var ErrAlreadyRunning = errors.New("server is already running")

// Server accepts connections and answers one request per connection using a Handler
type Server struct {
	config      Config
	workers     workerpool.Config
	handler     handler.Handler
	logger      *zap.Logger
	metrics     Metrics
	poolMetrics workerpool.Metrics

	runMu sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}

	readyOnce sync.Once
	ready     chan struct{}

	mu   sync.Mutex
	addr net.Addr

	tasks     sync.WaitGroup
	connCount atomic.Int32
}

// Option customizes a Server
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkers sets the worker pool configuration
func WithWorkers(cfg workerpool.Config) Option {
	return func(s *Server) {
		s.workers = cfg
	}
}

// WithMetrics sets the connection metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithPoolMetrics sets the worker pool metrics sink
func WithPoolMetrics(m workerpool.Metrics) Option {
	return func(s *Server) {
		s.poolMetrics = m
	}
}

// New creates a new Server instance
func New(config Config, h handler.Handler, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("handler is required")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	s := &Server{
		config:  config,
		handler: h,
		logger:  logging.Nop(),
		metrics: noopMetrics{},
		stop:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts the worker pool, binds the listener and serves until Stop is
// called or ctx is cancelled. It then stops accepting, waits for every
// in-flight connection to finish, stops the pool and returns nil.
//
// Only one Run may be active at a time; a concurrent call returns
// ErrAlreadyRunning without affecting the running one. A bind failure is
// returned as an error.
func (s *Server) Run(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	pool := workerpool.New(s.workers, s.handler, s.logger.Named("workers"), s.poolMetrics)
	pool.Start()
	defer pool.Stop()

	ln, err := Listen(s.config.Host, s.config.Port, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("Server listening for connections",
		zap.String("addr", ln.Addr().String()),
		zap.Int64("max_request_size", s.config.MaxRequestSize),
		zap.Duration("timeout", s.config.Timeout),
		zap.Int("workers", pool.Size()),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve(func(conn net.Conn) {
			s.accept(conn, pool)
		})
	}()

	select {
	case <-s.stop:
		s.logger.Info("Shutdown requested, stopping server...")
	case <-ctx.Done():
		s.logger.Info("Context cancelled, stopping server...", zap.Error(ctx.Err()))
		s.Stop()
	case err := <-serveErr:
		// Serve only returns on close; reaching here means the listener died
		serveErr <- err
		s.logger.Error("Accept loop exited unexpectedly", zap.Error(err))
	}

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("Error closing listener", zap.Error(err))
	}
	<-serveErr

	active := s.connCount.Load()
	if active > 0 {
		s.logger.Info("Waiting for in-flight connections", zap.Int32("active", active))
	}
	s.tasks.Wait()

	pool.Stop()
	s.logger.Info("Server stopped")
	return nil
}

// accept runs on the accept loop goroutine and must return promptly.
func (s *Server) accept(conn net.Conn, pool *workerpool.Pool) {
	task, err := newConnectionTask(conn, &s.config, pool, s.logger, s.metrics)
	if err != nil {
		s.logger.Warn("Failed to set up connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	s.tasks.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(s.connCount.Add(1))

	go func() {
		defer func() {
			s.metrics.RecordConnectionClosed()
			s.metrics.SetActiveConnections(s.connCount.Add(-1))
			s.tasks.Done()
		}()
		task.run()
	}()
}

// Stop asks a running (or future) Run to stop accepting and drain.
// It does not block and may be called any number of times from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// Ready is closed once the listener has been bound. It is never closed if
// the bind fails, so callers waiting on it must also watch Run's error.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ActiveConnections returns the number of connections currently being handled
func (s *Server) ActiveConnections() int {
	return int(s.connCount.Load())
}
