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

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/correlation"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server        *http.Server
	router        chi.Router
	config        *Config
	authenticator auth.Authenticator
	logger        logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address (default: ":8080")
	Addr string

	// Passkey serves the /api/passkey routes (required)
	Passkey *passkeyhttp.Handler

	// Users enables the /api/users administration routes (optional)
	Users UserAdmin

	// Authenticator resolves bearer tokens and API keys (required)
	Authenticator auth.Authenticator

	// Limiter throttles ceremony routes (optional)
	Limiter *ratelimit.Limiter

	// TrustProxyHeaders keys the rate limiter by X-Forwarded-For
	TrustProxyHeaders bool

	// Health serves /health and /ready (optional)
	Health *health.Checker

	// MetricsPath exposes Prometheus metrics when non-empty
	MetricsPath string

	// CORSOrigins are the browser origins allowed to call the API
	CORSOrigins []string

	// TLSConfig enables HTTPS (optional)
	TLSConfig *tls.Config

	// Logger defaults to a JSON slog adapter
	Logger logger.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Passkey == nil {
		return nil, fmt.Errorf("passkey handler is required")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
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

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level:  logger.LevelInfo,
			Format: "json",
		})
	}

	s := &Server{
		config:        cfg,
		authenticator: cfg.Authenticator,
		logger:        log.With(logger.String("component", "rest")),
	}
	s.router = s.setupRouter()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}

	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware(s.config.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	if checker := s.config.Health; checker != nil {
		r.Get("/health", checker.LiveHandler())
		r.Head("/health", checker.LiveHandler())
		r.Get("/ready", checker.ReadyHandler())
		r.Get("/startup", checker.StartupHandler())
	}

	if path := s.config.MetricsPath; path != "" {
		r.Handle(path, promhttp.Handler())
	}

	opts := passkeyhttp.MountOptions{
		Authenticate: s.AuthenticationMiddleware(),
	}
	if s.config.Limiter != nil && s.config.Limiter.IsEnabled() {
		opts.RateLimit = ratelimit.Middleware(s.config.Limiter, ratelimit.ClientIP(s.config.TrustProxyHeaders))
	}
	r.Route("/api/passkey", func(r chi.Router) {
		passkeyhttp.MountChi(r, s.config.Passkey, opts)
	})

	if s.config.Users != nil {
		users := NewUserHandlers(s.config.Users)
		r.Route("/api/users", func(r chi.Router) {
			r.Use(s.AuthenticationMiddleware())
			r.Use(RequireRole(passkeyhttp.RoleAdmin))
			r.Get("/", users.ListUsersHandler)
			r.Post("/", users.CreateUserHandler)
			r.Get("/{id}", users.GetUserHandler)
			r.Delete("/{id}", users.DeleteUserHandler)
		})
	}

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful Stop.
func (s *Server) Serve(ln net.Listener) error {
	scheme := "http"
	if s.config.TLSConfig != nil {
		scheme = "https"
		ln = tls.NewListener(ln, s.config.TLSConfig)
	}

	s.logger.Info("Starting server",
		logger.String("addr", ln.Addr().String()),
		logger.String("scheme", scheme),
		logger.String("auth", s.authenticator.Name()))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve %s: %w", scheme, err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}
