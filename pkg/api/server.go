// Package api provides the RESTful HTTP API server in front of a loaded
// first-match rule set. It exposes endpoints for classification, rule
// listing, statistics, health checks and runtime configuration.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ebpf-microsegment/firstmatch/pkg/dataplane"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Server represents the HTTP API server that answers classification
// queries and reports on the loaded rule set.
// It uses the Gin framework and serves one data plane.
type Server struct {
	config     *Config
	configMu   sync.RWMutex
	dataPlane  *dataplane.DataPlane
	registry   *prometheus.Registry
	httpServer *http.Server
	listener   net.Listener
	router     *gin.Engine
}

// NewAPIServer creates and initializes a new API server instance.
// It sets up the Gin router, configures middleware, and registers all routes.
//
// Parameters:
//   - cfg: API server configuration (nil uses defaults)
//   - dp: Data plane holding the frozen rule set
//
// Returns:
//   - *Server: Initialized server instance
//   - error: Error if initialization fails
func NewAPIServer(cfg *Config, dp *dataplane.DataPlane) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dp == nil {
		return nil, errors.New("data plane is required")
	}

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()

	server := &Server{
		config:    cfg,
		dataPlane: dp,
		registry:  dp.Registry(),
		router:    router,
	}

	// Setup routes and middleware
	if err := server.setupMiddleware(); err != nil {
		return nil, err
	}
	server.setupRoutes()

	return server, nil
}

// Start binds the configured host and port and serves in a background
// goroutine. Bind errors are returned; the method does not block.
//
// Returns:
//   - error: Error if the listener cannot be created
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Infof("Starting API server on %s", ln.Addr())

	// Start server in goroutine
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("API server failed: %v", err)
		}
	}()

	return nil
}

// Addr returns the address the server listens on, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
// It waits for in-flight requests to complete (up to 30 seconds).
// After the timeout, the server will forcefully shutdown.
//
// Returns:
//   - error: Error if shutdown fails or times out
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	log.Info("Shutting down API server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("API server forced to shutdown: %v", err)
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// GetRouter returns the underlying Gin router instance.
// This is primarily useful for testing purposes to inject
// test HTTP requests without starting the full HTTP server.
//
// Returns:
//   - *gin.Engine: The Gin router instance
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
