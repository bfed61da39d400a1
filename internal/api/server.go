// Package api exposes the matching service over HTTP for the back-office
// frontend.
package api

import (
	"context"
	"net/http"
	"time"

	"bankfeed-reconciliation-service/internal/engine"
	"bankfeed-reconciliation-service/internal/store"
	"bankfeed-reconciliation-service/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultServerConfig listens on :8080 and allows any origin, which suits
// local development with the frontend dev server.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
	}
}

// Server serves the matching API
type Server struct {
	config  *ServerConfig
	service *engine.MatchingService
	store   store.DataStore
	logger  logger.Logger
	http    *http.Server
}

// NewServer wires the router and returns a server ready to run
func NewServer(config *ServerConfig, service *engine.MatchingService, dataStore store.DataStore, log logger.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	server := &Server{
		config:  config,
		service: service,
		store:   dataStore,
		logger:  log.WithComponent("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	server.registerRoutes(router)

	server.http = &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/automatch", s.handleAutoMatch)

		api.GET("/lines", s.handleListLines)
		api.GET("/lines/:id", s.handleGetLine)
		api.GET("/lines/:id/suggestions", s.handleSuggestions)
		api.POST("/lines/:id/quickmatch", s.handleQuickMatch)
		api.POST("/lines/:id/matches", s.handleAcceptSuggestion)
		api.DELETE("/lines/:id/match", s.handleUnmatch)
		api.POST("/lines/:id/ignore", s.handleIgnore)
		api.POST("/lines/:id/missing-record", s.handleMissingRecord)
		api.POST("/lines/:id/restore", s.handleRestore)
		api.DELETE("/lines/:id", s.handleDeleteLine)

		api.GET("/records/unmatched", s.handleUnmatchedRecords)
	}
}

// Handler exposes the underlying router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the listener fails or Shutdown is called
func (s *Server) Run() error {
	s.logger.WithField("addr", s.config.Addr).Info("starting API server")

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}
