// Package api exposes the catalog store and the lesson plan store over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
	"github.com/curriculum-catalog-server/internal/middleware"
)

// Version is reported by /health.
const Version = "1.0.0"

// retryAfterSeconds is sent with CATALOG_LOADING responses.
const retryAfterSeconds = "2"

// HealthChecker is implemented by optional backing services reported by /health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// detailer is implemented by checkers that report extra state, such as
// connection pool statistics.
type detailer interface {
	Details() interface{}
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

// PayloadInvalidator drops a cached upstream payload.
type PayloadInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP API serves.
type Dependencies struct {
	Catalog *catalog.Store
	Plans   lessonplan.Store
	// Cache is optional; POST /catalog/reload?invalidate=true clears it.
	Cache PayloadInvalidator
	// Checks are optional named health probes (database, redis, upstream).
	Checks map[string]HealthChecker
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	catalog  *catalog.Store
	plans    lessonplan.Store
	cache    PayloadInvalidator
	checks   map[string]HealthChecker
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	server := &Server{
		config:  cfg,
		catalog: deps.Catalog,
		plans:   deps.Plans,
		cache:   deps.Cache,
		checks:  deps.Checks,
		router:  router,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
	}

	server.setupRoutes()
	return server
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		cat := v1.Group("/catalog")
		cat.GET("/state", s.handleCatalogState)
		cat.POST("/reload", s.handleCatalogReload)
		cat.GET("/levels", s.handleLevels)
		cat.GET("/areas", s.handleSubjectAreas)
		cat.GET("/contents", s.handleContents)
		cat.POST("/descriptors", s.handleDescriptors)
		cat.GET("/watch", s.handleWatch)

		plans := v1.Group("/lesson-plans")
		if timeout := s.config.Server.WriteTimeout; timeout > 0 {
			plans.Use(middleware.RequestTimeout(timeout))
		}
		plans.POST("", s.handleCreatePlan)
		plans.GET("", s.handleListPlans)
		plans.GET("/stats", s.handlePlanStats)
		plans.GET("/export", s.handleExportPlans)
		plans.POST("/import", s.handleImportPlans)
		plans.GET("/:id", s.handleGetPlan)
		plans.PATCH("/:id", s.handleUpdatePlan)
		plans.DELETE("/:id", s.handleDeletePlan)
	}
}

// handleHealth reports the catalog state and optional dependency probes.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	state := s.catalog.State()
	status := "healthy"
	httpStatus := http.StatusOK
	switch state.State {
	case catalog.StateFailed:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case catalog.StateIdle, catalog.StateLoading:
		status = "degraded"
	}

	components := gin.H{}
	for name, check := range s.checks {
		if err := check.Health(ctx); err != nil {
			components[name] = gin.H{"status": "unhealthy", "error": err.Error()}
			if status == "healthy" {
				status = "degraded"
			}
			continue
		}
		component := gin.H{"status": "healthy"}
		if d, ok := check.(detailer); ok {
			component["details"] = d.Details()
		}
		components[name] = component
	}

	c.JSON(httpStatus, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
		"catalog":    state,
		"components": components,
	})
}

// respondError writes a domain.APIError with the request's correlation id.
func respondError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// originChecker mirrors the CORS policy for websocket upgrades.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}
