// Package http exposes SkillPath Hub over a JSON REST API: learner progress,
// credential claims, the course registry and health checks.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/app"
	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Allowed CORS origins; empty or "*" allows all.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies, snapshots included.
	MaxBodyBytes int64

	// Version is reported in response metadata.
	Version string

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// ConfigFrom derives the server configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg.HTTP.Addr != "" {
		c.Addr = cfg.HTTP.Addr
	}
	if cfg.HTTP.ReadTimeout > 0 {
		c.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		c.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.IdleTimeout > 0 {
		c.IdleTimeout = cfg.HTTP.IdleTimeout
	}
	c.CORSOrigins = cfg.HTTP.CORSOrigins
	c.Version = cfg.App.Version
	c.Debug = cfg.App.Debug
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HealthFunc reports the state of each backing component.
type HealthFunc func(ctx context.Context) (map[string]string, error)

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Commands app.Commands
	Queries  app.Queries
	Catalog  *catalog.Catalog

	Auth   *Authenticator
	Health HealthFunc
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.Auth == nil {
		s.deps.Auth = NewAuthenticator(config.AuthConfig{}, false)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(
		requestID(s.logger),
		requestLogger(s.logger),
		recovery(s.logger),
		corsMiddleware(cfg.CORSOrigins),
	)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/live", s.handleLive)

	api := r.Group("/api/v1")
	api.Use(s.limitBody)

	// Public reads
	api.GET("/catalog", s.handleCatalog)
	api.GET("/catalog/:courseId", s.handleCatalogCourse)
	api.GET("/summary", s.handleSummary)
	api.GET("/stats", s.handleLedgerStats)
	api.GET("/courses", s.handleListCourses)
	api.GET("/courses/:courseId", s.handleGetCourse)
	api.GET("/courses/:courseId/claims/:identity", s.handleHasClaimed)
	api.GET("/identities/:identity/credentials", s.handleIdentityCredentials)
	api.GET("/identities/:identity/stats", s.handleIdentityLedgerStats)
	api.GET("/credentials/:tokenId", s.handleCredentialMetadata)
	api.GET("/credentials/:tokenId/uri", s.handleTokenURI)
	api.GET("/credentials/:tokenId/owner", s.handleOwnerOf)
	api.GET("/credentials/:tokenId/approved", s.handleGetApproved)
	api.GET("/approvals/:owner/:operator", s.handleIsApprovedForAll)

	authed := api.Group("")
	authed.Use(requireIdentity(s.deps.Auth))

	// Learner progress for the caller
	me := authed.Group("/me")
	me.GET("/courses/:courseId", s.handleCourseProgress)
	me.POST("/courses/:courseId/parts/:partId/lessons/:lessonId/complete", s.handleMarkLesson)
	me.POST("/courses/:courseId/parts/:partId/lessons/:lessonId/answer", s.handleAnswerLesson)
	me.PUT("/courses/:courseId/parts/:partId/score", s.handlePartScore)
	me.POST("/courses/:courseId/parts/:partId/quiz", s.handlePartQuiz)
	me.POST("/courses/:courseId/reset", s.handleResetCourse)
	me.GET("/courses/:courseId/eligibility", s.handleEligibility)
	me.POST("/courses/:courseId/claim", s.handleClaim)
	me.GET("/export", s.handleExport)
	me.POST("/import", s.handleImport)
	me.GET("/statistics", s.handleStatistics)
	me.GET("/credentials", s.handleMyCredentials)

	// Ownership changes are always refused for soulbound credentials
	authed.POST("/credentials/:tokenId/transfer", s.handleTransfer)
	authed.POST("/credentials/:tokenId/approve", s.handleApprove)
	authed.POST("/credentials/approval-for-all", s.handleSetApprovalForAll)

	// Registry administration
	authed.POST("/courses", s.handleAddCourse)
	authed.PUT("/courses/:courseId", s.handleUpdateCourse)
}

func (s *Server) limitBody(c *gin.Context) {
	if s.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	}
	c.Next()
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. A later Start returns
// immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Addr
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

func (s *Server) writeJSON(c *gin.Context, status int, data any) {
	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: s.config.Version},
		RequestID: getRequestID(c),
	})
}

func (s *Server) writeList(c *gin.Context, data any, total int) {
	c.JSON(http.StatusOK, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: s.config.Version, TotalCount: total},
		RequestID: getRequestID(c),
	})
}

// writeDomainError maps err to a status and writes it.
func (s *Server) writeDomainError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, code, publicMessage(status, err))
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: getRequestID(c),
	})
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: getRequestID(c),
	})
}
