package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/filemount/filemount/internal/logger"
	"github.com/filemount/filemount/pkg/api/auth"
)

// Server provides the HTTP server for the asset API.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state; call Start to begin serving.
//
// The JWT service is created internally when a secret is configured (via
// config or the FILEMOUNT_API_JWT_SECRET environment variable). Without a
// secret the API runs unauthenticated.
func NewServer(config Config, deps Deps) (*Server, error) {
	config.ApplyDefaults()

	if secret := config.GetJWTSecret(); secret != "" {
		jwtService, err := auth.NewJWTService(auth.JWTConfig{
			Secret:        secret,
			Issuer:        config.JWT.Issuer,
			TokenDuration: config.JWT.TokenDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT service: %w", err)
		}
		deps.JWTService = jwtService
	} else {
		logger.Warn("API authentication disabled: no JWT secret configured")
	}

	if deps.MaxUploadSize == 0 {
		deps.MaxUploadSize = config.MaxUploadSize.Int64()
	}

	router := NewRouter(deps)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}, nil
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// A fresh context: the cancelled one would abort the drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
