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

package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

const metricsCollectInterval = 30 * time.Second

// Server is the passkey HTTP server and everything it owns.
type Server struct {
	config *config.Config
	mu     sync.RWMutex
	logger logger.Logger
	level  *slog.LevelVar

	components    *Components
	limiter       *ratelimit.Limiter
	healthChecker *health.Checker
	restServer    *rest.Server

	metricsCollector *metrics.ResourceCollector
	listener         net.Listener

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	serveErr   chan error
	shutdownCh chan struct{}
	stopOnce   sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithLogOutput directs logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) {
		s.logger = setupLogger(s.config.Logging, w, s.level)
	}
}

// New creates a server from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     cfg,
		level:      new(slog.LevelVar),
		ctx:        ctx,
		cancel:     cancel,
		serveErr:   make(chan error, 1),
		shutdownCh: make(chan struct{}),
	}
	s.logger = setupLogger(cfg.Logging, os.Stdout, s.level)
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.components, err = NewComponents(ctx, cfg, s.logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	s.initializeHealth()

	if err := s.initializeREST(); err != nil {
		cancel()
		_ = s.components.Close()
		return nil, fmt.Errorf("failed to initialize REST server: %w", err)
	}

	return s, nil
}

// setupLogger builds the slog backed logger. The level is held in a
// LevelVar so Reload can change it in place.
func setupLogger(cfg config.LoggingConfig, w io.Writer, level *slog.LevelVar) logger.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = slog.LevelInfo
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return logger.NewSlogAdapter(&logger.SlogConfig{Handler: handler})
}

// getBuildVersion retrieves the version from build information
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func (s *Server) initializeHealth() {
	s.healthChecker = health.NewChecker()
	if s.config.Health.CheckTimeout > 0 {
		s.healthChecker.SetTimeout(s.config.Health.CheckTimeout)
	}

	backend := s.config.Storage.Backend
	if backend == "" {
		backend = config.StorageMemory
	}
	s.healthChecker.RegisterCheck("storage", health.BackendCheck(backend, s.components.Backend))

	s.logger.Debug("Health checker initialized",
		logger.Int("checks", len(s.healthChecker.GetAllChecks())))
}

func (s *Server) initializeREST() error {
	if s.config.RateLimit.Enabled {
		s.limiter = ratelimit.New(&s.config.RateLimit)
	}

	tlsConfig, err := s.config.TLS.LoadTLSConfig()
	if err != nil {
		return err
	}

	metricsPath := ""
	if s.config.Metrics.Enabled {
		metricsPath = s.config.Metrics.Path
	}

	handler := passkeyhttp.NewHandler(s.components.Service).
		WithLogger(s.logger.With(logger.String("component", "http")))

	s.restServer, err = rest.NewServer(&rest.Config{
		Addr:              s.config.Server.Addr(),
		Passkey:           handler,
		Users:             s.components.Users,
		Authenticator:     s.components.Authenticator,
		Limiter:           s.limiter,
		TrustProxyHeaders: s.config.RateLimit.TrustProxyHeaders,
		Health:            s.healthChecker,
		MetricsPath:       metricsPath,
		CORSOrigins:       s.config.Server.CORSOrigins,
		TLSConfig:         tlsConfig,
		Logger:            s.logger,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
	})
	if err != nil {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		return err
	}
	return nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.logger.Info("Starting passkey server", logger.String("version", getBuildVersion()))

	if s.config.Metrics.Enabled {
		metrics.Enable()
		s.metricsCollector = metrics.StartResourceCollector(s.ctx, metricsCollectInterval, s.countUsers)
	} else {
		metrics.Disable()
	}

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.restServer.Serve(ln); err != nil {
			s.logger.Error("REST server error", logger.Error(err))
			s.serveErr <- err
		}
	}()

	s.healthChecker.MarkStarted()
	s.logSystemEvent(audit.EventSystemStart)
	return nil
}

func (s *Server) countUsers(ctx context.Context) (int, int, error) {
	users, err := s.components.Users.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	withPasskey := 0
	for _, u := range users {
		if u.PasskeyEnabled {
			withPasskey++
		}
	}
	return len(users), withPasskey, nil
}

func (s *Server) logSystemEvent(eventType audit.EventType) {
	if s.components.Audit == nil {
		return
	}
	event := &audit.AuditEvent{
		EventType: eventType,
		Severity:  audit.SeverityInfo,
		Outcome:   audit.OutcomeSuccess,
		Principal: &audit.Principal{Type: "system", ID: "passkey-server"},
		Metadata:  map[string]interface{}{"version": getBuildVersion()},
	}
	if err := s.components.Audit.LogEvent(context.Background(), event); err != nil {
		s.logger.Warn("Failed to record audit event",
			logger.String("event_type", string(eventType)),
			logger.Error(err))
	}
}

// Addr returns the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.config.Server.Addr()
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		_ = s.Shutdown()
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.serveErr:
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	return serveErr
}

// Shutdown stops accepting requests, drains in-flight ones and releases
// storage. It is safe to call more than once.
func (s *Server) Shutdown() error {
	var shutdownErr error
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down server...")
		s.healthChecker.MarkNotStarted()

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.restServer.Stop(ctx); err != nil {
			shutdownErr = err
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Shutdown timeout exceeded, forcing stop")
		}

		if s.metricsCollector != nil {
			s.metricsCollector.Stop()
		}
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.cancel()
		s.logSystemEvent(audit.EventSystemStop)

		if err := s.components.Close(); err != nil {
			s.logger.Error("Error closing components", logger.Error(err))
			if shutdownErr == nil {
				shutdownErr = err
			}
		}

		close(s.shutdownCh)
		s.logger.Info("Server shutdown complete")
	})
	return shutdownErr
}

// WaitForShutdown blocks until Shutdown has completed.
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// Components exposes the wired service objects.
func (s *Server) Components() *Components {
	return s.components
}

// HealthChecker returns the probe checker.
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}

// RESTServer returns the HTTP server.
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM, and
// a channel that receives SIGHUP for configuration reloads.
func SetupSignalHandler() (context.Context, <-chan os.Signal) {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx, reloadCh
}
