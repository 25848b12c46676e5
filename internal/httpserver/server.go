// Package httpserver exposes the relay over HTTP: the agent chat and build
// endpoints plus admin views of provider health and recorded usage.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/auraforge/relay/internal/config"
	"github.com/auraforge/relay/internal/httpserver/middleware"
	"github.com/auraforge/relay/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      *config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      cfg,
		handler:     handler,
		middlewares: middlewares,
		srv:         nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("/v1/chat", s.handler.HandleChat)
	mux.HandleFunc("/v1/build", s.handler.HandleBuild)
	mux.HandleFunc("/v1/usage", s.handler.HandleUsage)
	mux.HandleFunc("/v1/admin/health", s.handler.HandleProviderHealth)
	mux.HandleFunc("/v1/admin/best", s.handler.HandleBest)
	mux.HandleFunc("/v1/admin/reset", s.handler.HandleHealthReset)
	mux.HandleFunc("/v1/admin/suspend", s.handler.HandleSuspend)
	mux.HandleFunc("/health", s.handler.HandleHealth)

	// Apply middleware chain.
	handlerWithMiddleware := s.middlewares(mux)

	// Create server with timeouts.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
