package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/logging"
	"financial-diagnostics/internal/recompute"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// PublicationGate flips the publication flag of a computed period
type PublicationGate interface {
	SetPublished(ctx context.Context, periodID string, published bool) (*database.PublicationChange, error)
}

// MetricsReader serves the published read model
type MetricsReader interface {
	ListPublishedMetrics(ctx context.Context, companyID string, isTaxRecord bool) ([]database.PublishedMetrics, error)
	HealthCheck(ctx context.Context) error
}

// SeriesCache is the write-through cache of the published read model.
// Writes are conditional on the generation read before the database load.
type SeriesCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	PublishedSeriesGeneration(ctx context.Context, companyID string) (int64, error)
	StorePublishedSeries(ctx context.Context, companyID string, isTaxRecord bool, gen int64, rows interface{}, ttl time.Duration) (bool, error)
}

// Reconciler re-runs failed series on operator request
type Reconciler interface {
	RunOnce(ctx context.Context) (*recompute.ReconcileReport, error)
}

// Dependencies are the services the HTTP boundary calls into
type Dependencies struct {
	Recomputer  recompute.Recomputer
	Publication PublicationGate
	Metrics     MetricsReader
	Cache       SeriesCache // nil disables caching of the read model
	Reconciler  Reconciler
	SeriesTTL   time.Duration
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	deps       Dependencies
	logger     *logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	router := gin.New()

	// Middleware
	router.Use(logging.GinMiddleware())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Origins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router: router,
		config: cfg,
		deps:   deps,
		logger: logging.WithComponent("api"),
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  seconds(cfg.ReadTimeout, 15),
			WriteTimeout: seconds(cfg.WriteTimeout, 15),
			IdleTimeout:  60 * time.Second,
		},
	}
	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	api.GET("/health", s.handleHealth)

	companies := api.Group("/companies/:companyID")
	{
		companies.POST("/recompute", s.handleRecompute)
		companies.GET("/metrics", s.handleGetPublishedMetrics)
	}

	periods := api.Group("/periods/:periodID")
	{
		periods.POST("/statements-changed", s.handleStatementsChanged)
		periods.DELETE("", s.handleDeletePeriod)
		periods.PUT("/publication", s.handleSetPublication)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/reconcile", s.handleReconcile)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops. It returns nil
// at once if Shutdown already ran.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// serviceError maps domain errors to status codes.
func (s *Server) serviceError(c *gin.Context, err error) {
	var invalid *engine.InvalidSeriesError
	switch {
	case errors.As(err, &invalid):
		errorResponse(c, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, database.ErrPeriodNotFound):
		errorResponse(c, http.StatusNotFound, "period not found")
	case errors.Is(err, database.ErrMetricsNotFound):
		errorResponse(c, http.StatusNotFound, "no computed metrics for period")
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("Request failed", "path", c.FullPath())
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
