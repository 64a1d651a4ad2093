package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrServerRunning is returned when Start is called twice.
var ErrServerRunning = errors.New("metrics server already running")

// Server exposes a Metrics registry over HTTP at /metrics.
type Server struct {
	metrics *Metrics

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewServer creates a server for m. Nothing listens until Start.
func NewServer(m *Metrics) *Server {
	return &Server{metrics: m}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.addr = ln.Addr()

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}(s.server)

	slog.Info("metrics server listening", "addr", s.addr.String())
	return nil
}

// Addr returns the bound address, or nil if the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.addr = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
