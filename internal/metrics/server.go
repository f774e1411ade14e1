package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthTimeout bounds the queue length reads of one health request.
const healthTimeout = 2 * time.Second

// QueueLengthFunc returns the current length of one work queue.
type QueueLengthFunc func(ctx context.Context) (int64, error)

// Health is the /health response body.
type Health struct {
	Status string            `json:"status"`
	Queues map[string]int64  `json:"queues,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Server serves /metrics and /health.
type Server struct {
	srv    *http.Server
	queues map[string]QueueLengthFunc
	logger *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithQueue reports the length of the named queue on /health. A queue whose
// length cannot be read makes the server unhealthy.
func WithQueue(name string, length QueueLengthFunc) ServerOption {
	return func(s *Server) { s.queues[name] = length }
}

// NewServer creates a server on addr exposing the metrics of gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queues: make(map[string]QueueLengthFunc),
		logger: logger.With("component", "metrics-server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	health := Health{Status: "ok"}
	code := http.StatusOK
	for name, length := range s.queues {
		n, err := length(ctx)
		if err != nil {
			if health.Errors == nil {
				health.Errors = make(map[string]string)
			}
			health.Errors[name] = err.Error()
			health.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		if health.Queues == nil {
			health.Queues = make(map[string]int64)
		}
		health.Queues[name] = n
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// Handler returns the server's handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("Metrics server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
