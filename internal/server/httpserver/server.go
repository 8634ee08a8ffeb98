package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/routemesh-go/internal/telemetry/metric"
)

// Config holds the listener configuration.
type Config struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is a host:port for tcp or a socket path for unix.
	Address string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// ReadTimeout bounds reading one whole request, including the wait
	// for its first byte. Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds each response write. Zero disables it.
	WriteTimeout time.Duration

	// MaxContentLength limits request bodies. Zero disables the limit.
	MaxContentLength int64

	// MaxRedirects bounds redirect resolution per request.
	MaxRedirects int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Network:          "tcp",
		Address:          "127.0.0.1:8080",
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     10 * time.Second,
		MaxContentLength: 1 << 20,
		MaxRedirects:     DefaultMaxRedirects,
	}
}

// Server accepts connections and runs reader cycles on each of them,
// dispatching every completed request through its Dispatcher.
type Server struct {
	*Dispatcher

	cfg     *Config
	logger  *slog.Logger
	metrics *metric.Registry

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a server. The logger and metrics are shared with the
// embedded Dispatcher; opts may further configure it.
func New(cfg *Config, logger *slog.Logger, metrics *metric.Registry, opts ...DispatcherOption) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.Nop()
	}

	base := []DispatcherOption{
		WithLogger(logger),
		WithMetrics(metrics),
		WithMaxRedirects(cfg.MaxRedirects),
	}
	return &Server{
		Dispatcher: NewDispatcher(append(base, opts...)...),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start binds the listener and serves connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("httpserver: already running")
	}

	network := s.cfg.Network
	if network == "" {
		network = "tcp"
	}
	if network == "unix" {
		if err := os.Remove(s.cfg.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.running.Store(false)
			return fmt.Errorf("httpserver: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen(network, s.cfg.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("httpserver: listen %s %s: %w", network, s.cfg.Address, err)
	}
	s.ln = ln

	connCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("http server started",
		"network", network,
		"address", ln.Addr().String(),
		"tls", s.cfg.TLSConfig != nil,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(connCtx, ln); err != nil && s.running.Load() {
			s.logger.Error("http server accept error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, aborts reads that are waiting for a request
// and waits for in-flight dispatches to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("http server stopped")
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

// serveConn runs one reader cycle per request while the connection stays
// in keep-alive.
func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	s.metrics.ConnectionsAccepted.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	var source ByteSource
	if s.cfg.TLSConfig != nil {
		source = TLSSource(nc, s.cfg.TLSConfig)
	} else {
		source = PlainSource(nc)
	}
	conn := NewConn(source)
	conn.SetWriteTimeout(s.cfg.WriteTimeout)
	defer conn.Release()

	s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())

	for {
		r := NewReader(conn, s.Dispatcher.HandleRequest,
			WithReadTimeout(s.cfg.ReadTimeout),
			WithMaxContentLength(s.cfg.MaxContentLength),
			WithReaderLogger(s.logger),
		)
		r.Receive(ctx)

		select {
		case <-conn.Finished():
		case <-ctx.Done():
			conn.Close()
			return
		}
		if !conn.KeepAlive() {
			return
		}
	}
}
