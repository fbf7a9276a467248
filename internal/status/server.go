package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultAddr is where the status server listens unless configured.
const DefaultAddr = "127.0.0.1:8090"

// Server serves the status routes with conservative timeouts.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer validates the wiring and builds the server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Flags == nil {
		return nil, fmt.Errorf("status: feature flags are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg),
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 2 * time.Second,
		},
		logger: logger,
	}, nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.Serve(listener)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("status server listening", zap.String("addr", listener.Addr().String()))
	if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
