// Package server exposes the schema manager over HTTP: liveness and
// readiness probes, Prometheus metrics, and a small admin API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/searchschema/internal/schema"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

// SchemaManager is the part of *schema.Manager the server drives.
type SchemaManager interface {
	Status(ctx context.Context) (schema.Status, error)
	IsSchemaReadyForUse(ctx context.Context) bool
	History() *telemetry.History
	TruncateIndices(ctx context.Context) ([]string, error)
	ArchivedIndices(ctx context.Context) ([]string, error)
	DeleteArchivedIndices(ctx context.Context) error
}

// Pinger reports whether the document store answers.
type Pinger interface {
	IsHealthy(ctx context.Context) bool
}

// Config configures the HTTP server.
type Config struct {
	Address string
	// CheckTimeout bounds each probe call into the store.
	CheckTimeout time.Duration
	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the probe, metrics and admin HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router *gin.Engine
	health healthcheck.Handler
	store  Pinger

	mu      sync.RWMutex
	manager SchemaManager

	httpServer *http.Server
}

// New builds the router. The manager can be swapped later with SetManager.
func New(cfg Config, store Pinger, manager SchemaManager) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		health:  healthcheck.NewHandler(),
		store:   store,
		manager: manager,
	}

	s.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	s.health.AddLivenessCheck("store", s.storeCheck)
	s.health.AddReadinessCheck("schema", s.schemaCheck)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/live", gin.WrapF(s.health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(s.health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	admin := router.Group("/admin")
	admin.GET("/status", s.handleStatus)
	admin.GET("/history", s.handleHistory)
	admin.GET("/archived", s.handleArchived)
	admin.POST("/truncate", s.handleTruncate)
	admin.POST("/delete-archived", s.handleDeleteArchived)

	s.router = router
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetManager replaces the manager, e.g. after a config reload.
func (s *Server) SetManager(m SchemaManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager = m
}

func (s *Server) currentManager() SchemaManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}

var (
	errStoreUnavailable = errors.New("document store is not responding")
	errSchemaNotReady   = errors.New("schema is not ready for use")
)

func (s *Server) storeCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckTimeout)
	defer cancel()
	if !s.store.IsHealthy(ctx) {
		return errStoreUnavailable
	}
	return nil
}

func (s *Server) schemaCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CheckTimeout)
	defer cancel()
	if !s.currentManager().IsSchemaReadyForUse(ctx) {
		return errSchemaNotReady
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)))
	}
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", slog.String("address", s.cfg.Address))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.logger.Info("http_server_stopped")
		return err
	}
}
