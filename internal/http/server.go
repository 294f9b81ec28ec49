// Package http provides the HTTP API for retrieverd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/retrieverd/internal/config"
	"github.com/fyrsmithlabs/retrieverd/internal/document"
	"github.com/fyrsmithlabs/retrieverd/internal/orchestrator"
)

// DocumentStore is the ingestion and catalog surface of the vector store.
type DocumentStore interface {
	Upsert(ctx context.Context, tenantID string, docs []document.Document) (int, error)
	List(ctx context.Context, tenantID string) ([]document.Document, error)
	DeleteTenant(ctx context.Context, tenantID string) error
	DeleteDocument(ctx context.Context, tenantID, docID string) error
}

// QueryService answers tenant queries.
type QueryService interface {
	Query(ctx context.Context, tenantID, query string, topK int) (*orchestrator.Result, error)
}

// CacheInvalidator drops cached answers when tenant data is removed.
type CacheInvalidator interface {
	DeleteTenant(tenantID string)
}

// Server provides HTTP endpoints for retrieverd.
type Server struct {
	echo    *echo.Echo
	store   DocumentStore
	queries QueryService
	cache   CacheInvalidator
	logger  *zap.Logger
	metrics *HTTPMetrics
	config  config.ServerConfig
}

// NewServer creates a new HTTP server. Cache may be nil when caching is
// disabled.
func NewServer(cfg config.ServerConfig, store DocumentStore, queries QueryService, cache CacheInvalidator, logger *zap.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if queries == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		store:   store,
		queries: queries,
		cache:   cache,
		logger:  logger,
		metrics: NewHTTPMetrics(logger),
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(s.metrics.Middleware())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tenants/:tenant/documents", s.handleIngest)
	v1.GET("/tenants/:tenant/documents", s.handleListDocuments)
	v1.DELETE("/tenants/:tenant/documents/:id", s.handleDeleteDocument)
	v1.DELETE("/tenants/:tenant", s.handleDeleteTenant)
	v1.POST("/tenants/:tenant/query", s.handleQuery)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
