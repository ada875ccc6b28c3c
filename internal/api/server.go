// Package api exposes the question-answering pipeline over HTTP and
// WebSocket transports.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
	"github.com/patient-insight-server/internal/middleware"
)

const serverVersion = "1.0.0"

// QueryPipeline answers one natural-language question within a session.
type QueryPipeline interface {
	Answer(ctx context.Context, sessionID, query string) (*domain.Response, error)
}

// HealthChecker reports the liveness of a named dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries the collaborators the server needs. Checks is keyed by
// component name and drives the /health report.
type Deps struct {
	Pipeline QueryPipeline
	Source   domain.EvidenceSource
	Checks   map[string]HealthChecker
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	pipeline QueryPipeline
	source   domain.EvidenceSource
	checks   map[string]HealthChecker
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, deps Deps, logger *logrus.Logger) *Server {
	// Set Gin mode based on environment
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:   config,
		pipeline: deps.Pipeline,
		source:   deps.Source,
		checks:   deps.Checks,
		logger:   logger,
		router:   router,
		limiter:  middleware.NewRateLimiter(config.Server.RateLimit, config.Server.RateBurst, logger),
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return server.originAllowed(r.Header.Get("Origin"))
		},
	}

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SessionID())
	router.Use(server.corsMiddleware())

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
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
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint; never rate limited so probes stay cheap.
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.limiter.Middleware())
	{
		api.POST("/chat", s.handleChat)
		api.GET("/patients", s.handleListPatients)
	}

	s.router.GET("/ws/chat", s.limiter.Middleware(), s.handleChatSocket)
}

// chatRequest is the POST /api/chat body. An empty query is still routed
// through the pipeline so the caller gets the standard prompt to provide
// a question.
type chatRequest struct {
	Query string `json:"query"`
}

// handleChat answers a single question within the request's session.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrInvalidInput, "request body must be JSON with a query field", "", c.GetString("correlation_id")))
		return
	}

	sessionID := c.GetString("session_id")
	response, err := s.pipeline.Answer(c.Request.Context(), sessionID, req.Query)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"session_id":     sessionID,
			"correlation_id": c.GetString("correlation_id"),
			"error":          err,
		}).Error("Pipeline failed to answer query")
		// Internal failure detail stays in the log, never in the body.
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrInternalServer, "unable to answer the question right now", "", c.GetString("correlation_id")))
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleListPatients returns the patient roster for client-side pickers.
func (s *Server) handleListPatients(c *gin.Context) {
	patients, err := s.source.ListPatients(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list patients")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrDatabaseError, "unable to load the patient roster", "", c.GetString("correlation_id")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patients": patients,
		"count":    len(patients),
	})
}

// handleHealth reports liveness plus per-component status. Any failing
// component degrades the overall status to 503.
func (s *Server) handleHealth(c *gin.Context) {
	components := make(map[string]string, len(s.checks))
	healthy := true

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := check.Health(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"version":    serverVersion,
		"timestamp":  time.Now().UTC(),
		"components": components,
	})
}

// corsMiddleware adds CORS headers honoring the configured origin list.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Session-ID, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Session-ID, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// originAllowed reports whether the Origin header passes the configured
// allow list. Requests without an Origin (curl, server-to-server) pass.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
