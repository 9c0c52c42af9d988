// Package server owns the process listeners: an HTTP server for health,
// metrics and the admin API, and an optional gRPC server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"google.golang.org/grpc"
)

// Server is the network layer. Register handlers and services before Start.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mux  *http.ServeMux
	grpc *grpc.Server

	mu         sync.Mutex
	started    bool
	httpServer *http.Server
	httpAddr   net.Addr
	grpcAddr   net.Addr
}

// New returns a Server for cfg.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "server"),
		mux:    http.NewServeMux(),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.unaryRecovery))
	return s
}

// Handle registers an HTTP handler.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// RegisterService registers a gRPC service. It is only served when a gRPC
// port is configured.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	s.grpc.RegisterService(desc, impl)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, s.recovery, s.requestID, s.accessLog)
}

// Start binds the listeners and serves until ctx is cancelled or a listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true

	httpLn, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.HTTPPort)))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpAddr = httpLn.Addr()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	var grpcLn net.Listener
	if s.cfg.GRPCPort != 0 {
		grpcLn, err = net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.GRPCPort)))
		if err != nil {
			s.mu.Unlock()
			httpLn.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
		s.grpcAddr = grpcLn.Addr()
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", httpLn.Addr().String())
		if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()
	if grpcLn != nil {
		go func() {
			s.logger.Info("Starting gRPC server", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server error: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Addr returns the bound HTTP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// Stop shuts the listeners down gracefully, forcing the gRPC server when ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		s.logger.Info("Stopping HTTP server")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown error: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Context deadline exceeded, forcing gRPC stop")
		s.grpc.Stop()
	}
	return errors.Join(errs...)
}
