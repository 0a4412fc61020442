// Package server provides the admin HTTP server and the metrics server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/z0w13/dmserv/internal/config"
	"github.com/z0w13/dmserv/internal/handler"
	"github.com/z0w13/dmserv/internal/health"
	"github.com/z0w13/dmserv/internal/metrics"
	"github.com/z0w13/dmserv/internal/middleware"
	"go.uber.org/zap"
)

// Server represents the admin HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthChecker
	errorHandler *handler.ErrorHandler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new admin HTTP server with all routes registered.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthChecker,
	errorHandler *handler.ErrorHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	s := &Server{
		router:       router,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.Metrics(s.metrics),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	s.router.Use(middleware.Chain(middlewareChain...))

	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Handle("/guilds/{guild_id}", s.bounded(s.handlers.GetGuild)).Methods(http.MethodGet)
	v1.HandleFunc("/guilds/{guild_id}/reconcile/fronters", s.handlers.ReconcileFronters).Methods(http.MethodPost)
	v1.HandleFunc("/guilds/{guild_id}/reconcile/roles", s.handlers.ReconcileRoles).Methods(http.MethodPost)
	v1.Handle("/stats", s.bounded(s.handlers.GetStats)).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{task}/run", s.handlers.RunTask).Methods(http.MethodPost)

	// Subrouters do not fall back to the parent's handlers
	for _, router := range []*mux.Router{s.router, v1} {
		router.NotFoundHandler = http.HandlerFunc(s.notFound)
		router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
	}
}

// bounded applies the request timeout to read-only routes. Passes are never
// bounded by it since a pass must not stop partway.
func (s *Server) bounded(h http.HandlerFunc) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return h
	}
	return middleware.Timeout(s.cfg.Server.RequestTimeout)(h)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, handler.ErrorCodeNotFound, "endpoint not found", r.Header.Get("X-Request-ID"))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, handler.ErrorCodeInvalidRequest, "method not allowed", r.Header.Get("X-Request-ID"))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsServer exposes a Prometheus registry on its own port.
type MetricsServer struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewMetricsServer creates a metrics server serving gatherer at path.
func NewMetricsServer(port int, path string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called.
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the metrics handler, for tests.
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}
