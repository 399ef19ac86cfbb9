// Package api assembles the HTTP surface: the main API server with its
// middleware chain, the separate health/metrics listener, and the background
// maintenance jobs.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/config"
	"github.com/hearthcrm/hearth/pkg/httputil"
	"github.com/hearthcrm/hearth/pkg/observability"
)

// RouteRegistrar is implemented by every handler set
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server runs the API listener and the health/metrics listener
type Server struct {
	cfg     *config.Config
	logger  *logrus.Logger
	handler http.Handler

	apiServer    *http.Server
	healthServer *http.Server
}

// NewServer wires the middleware chain and routes. redisClient may be nil.
func NewServer(cfg *config.Config, logger *logrus.Logger, db *sql.DB, redisClient *redis.Client,
	registry *prometheus.Registry, metrics *observability.Metrics, authStore *auth.Store,
	registrars ...RouteRegistrar) *Server {

	router := mux.NewRouter()
	for _, registrar := range registrars {
		registrar.RegisterRoutes(router)
	}

	// Authentication is optional at the middleware level: anonymous calls
	// carry no auth context and the security layer fails closed for them.
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		observability.HTTPMetricsMiddleware(metrics),
		auth.Middleware(authStore, logger, false),
		scopeMiddleware,
	)
	handler := chain(router)

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	observability.RegisterMetricsEndpoint(healthMux, registry)

	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		apiServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		healthServer: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
			Handler: healthMux,
		},
	}
}

// Handler returns the fully wrapped API handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts both listeners and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.WithField("addr", s.apiServer.Addr).Info("api server listening")
		if err := s.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server failed: %w", err)
		}
	}()
	go func() {
		s.logger.WithField("addr", s.healthServer.Addr).Info("health server listening")
		if err := s.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := s.apiServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("api server shutdown failed")
	}
	if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("health server shutdown failed")
	}
	return nil
}
