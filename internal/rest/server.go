// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest provides the HTTP server that exposes the passkey
// authentication API.
package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
)

// Server represents the REST API server.
type Server struct {
	server    *http.Server
	handler   *passkeyhttp.Handler
	addr      string
	origins   []string
	tlsConfig *tls.Config
	metrics   MetricsConfig
	logger    *slog.Logger
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the host:port to listen on (default: ":8080")
	Addr string

	// Service handles the passkey ceremonies
	Service *passkey.Service

	// AllowedOrigins are the web origins permitted by CORS, typically
	// the relying party origins
	AllowedOrigins []string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Metrics controls the Prometheus scrape endpoint
	Metrics MetricsConfig

	// Logger is the structured logger (optional, defaults to slog.Default)
	Logger *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("passkey service is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		handler:   passkeyhttp.NewHandler(cfg.Service).WithLogger(logger),
		addr:      cfg.Addr,
		origins:   cfg.AllowedOrigins,
		tlsConfig: cfg.TLSConfig,
		metrics:   cfg.Metrics,
		logger:    logger,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggingMiddleware())
	r.Use(MetricsMiddleware)
	r.Use(CORSMiddleware(s.origins))

	r.Get("/health", s.handler.Health)
	r.Head("/health", s.handler.Health)

	if s.metrics.Enabled {
		r.Handle(s.metrics.Path, promhttp.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		passkeyhttp.MountChi(r, s.handler)
	})

	// The profile endpoint is also exposed outside the auth mount so
	// clients can fetch it at /api/profile.
	r.With(s.handler.RequireAuth).Get("/api/profile", s.handler.Profile)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Route not found"}`))
	})

	return r
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS server", "addr", s.addr)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Router returns the configured router, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}
