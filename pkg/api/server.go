package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dfsingest/dfsingest/internal/logger"
	"github.com/dfsingest/dfsingest/pkg/config"
)

// Server wraps the HTTP listener serving the ingestion API, with graceful
// shutdown following the control-plane server's Start/Stop idiom.
type Server struct {
	server          *http.Server
	port            int
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
}

// NewServer builds a Server bound to the given handler, configured from
// cfg.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start listens and serves until ctx is cancelled, then performs a
// graceful shutdown bounded by the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("api server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("api server shutdown error: %w", shutdownErr)
			logger.Error("api server shutdown error", logger.Err(shutdownErr))
			return
		}
		logger.Info("api server stopped gracefully")
	})
	return err
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}
