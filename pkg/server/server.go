package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"mercator-hq/covenant/pkg/artifact"
	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/policy/engine"
	covtls "mercator-hq/covenant/pkg/security/tls"
	"mercator-hq/covenant/pkg/telemetry/health"
	"mercator-hq/covenant/pkg/telemetry/metrics"
)

// Dependencies are the components the HTTP surface exposes.
type Dependencies struct {
	Engine   *engine.Engine
	Recorder *recorder.Recorder

	// Health defaults to a checker over the engine and the audit backend.
	Health *health.Checker

	// Metrics is optional. When set, /metrics is served from config's path.
	Metrics     *metrics.Collector
	MetricsPath string

	// Artifact options are used by the export endpoints.
	Artifact *artifact.Options
	Version  health.VersionInfo
}

// Server serves the enforcement, rule and audit API.
type Server struct {
	config  *config.ServerConfig
	deps    Dependencies
	logger  *slog.Logger
	limiter *rate.Limiter
	handler http.Handler

	tlsConfig *tls.Config
	certs     *covtls.CertificateReloader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// New creates a server. The engine and the recorder are required.
func New(cfg *config.ServerConfig, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if deps.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if deps.Recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
		deps.Health.Register("rules", health.RulesCheck(deps.Engine))
		deps.Health.Register("audit_storage", health.StorageCheck(deps.Recorder.Storage()))
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
	tlsConfig, certs, err := covtls.ServerConfig(&cfg.TLS, logger)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	s.tlsConfig, s.certs = tlsConfig, certs
	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the complete handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully. With TLS enabled the certificate
// is loaded before the listener accepts connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	if s.certs != nil {
		if err := s.certs.Start(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("load certificate: %w", err)
		}
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String(), "tls", s.tlsConfig != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the server is serving.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /v1/enforce", s.handleEnforce)

	s.route(mux, "GET /v1/policies", s.handleListPolicies)
	s.route(mux, "POST /v1/policies", s.handleUploadPolicy)
	s.route(mux, "DELETE /v1/policies/{source...}", s.handleDeletePolicy)

	s.route(mux, "GET /v1/rules", s.handleListRules)
	s.route(mux, "GET /v1/rules/export", s.handleExportRules)
	s.route(mux, "GET /v1/rules/artifact", s.handleExportArtifact)
	s.route(mux, "POST /v1/rules/import", s.handleImportRules)

	s.route(mux, "GET /v1/audit", s.handleAuditQuery)
	s.route(mux, "GET /v1/audit/stats", s.handleAuditStats)
	s.route(mux, "GET /v1/audit/verify", s.handleAuditVerify)
	s.route(mux, "GET /v1/audit/export", s.handleAuditExport)

	s.deps.Health.Mount(mux, s.deps.Version)
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.maxBodyMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// route registers fn under pattern wrapped in a span and request metrics
// labelled with the pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, fn))
}
