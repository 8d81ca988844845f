package api

import (
	"context"
	"database/sql"
	"net/http"
	"regexp"
	"time"

	"spectra-monitor/internal/insights"
	"spectra-monitor/internal/session"
	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/config"
	"spectra-monitor/pkg/db"
	"spectra-monitor/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	config   *config.Config
	store    store.Store
	hub      *session.Hub
	events   *session.Router
	insights *insights.Service
	dbConn   *sql.DB
	redis    *db.RedisClient
	router   *gin.Engine
}

func NewServer(cfg *config.Config, st store.Store, hub *session.Hub, events *session.Router,
	ins *insights.Service, dbConn *sql.DB, redisClient *db.RedisClient) *Server {

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:   cfg,
		store:    st,
		hub:      hub,
		events:   events,
		insights: ins,
		dbConn:   dbConn,
		redis:    redisClient,
		router:   gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.corsMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		apps := api.Group("/apps")
		{
			apps.GET("", s.handleGetApps)
			apps.POST("", s.handleCreateApp)
			apps.DELETE("/:appId", s.validateID("appId"), s.handleDeleteApp)
			apps.GET("/:appId/devices", s.validateID("appId"), s.handleGetDevices)
			apps.POST("/:appId/devices", s.validateID("appId"), s.handleCreateDevice)
			apps.GET("/:appId/crashes", s.validateID("appId"), s.handleGetCrashes)
			apps.POST("/:appId/crashes", s.validateID("appId"), s.handleCreateCrash)
		}

		crashes := api.Group("/crashes")
		{
			crashes.POST("/:id/explain", s.validateID("id"), s.handleExplainCrash)
		}

		devices := api.Group("/devices")
		{
			devices.GET("/:deviceId", s.validateID("deviceId"), s.handleGetDevice)
			devices.GET("/:deviceId/logs", s.validateID("deviceId"), s.handleGetLogs)
			devices.POST("/:deviceId/logs/summary", s.validateID("deviceId"), s.handleSummarizeLogs)
			devices.POST("/:deviceId/logs/analysis", s.validateID("deviceId"), s.handleAnalyzeLogs)
		}

		flags := api.Group("/flags")
		{
			flags.GET("", s.handleGetFlags)
			flags.POST("", s.handleCreateFlag)
			flags.PUT("/:id", s.validateID("id"), s.handleUpdateFlag)
		}
	}
}

var idPattern = regexp.MustCompile("^[a-zA-Z0-9_-]{1,64}$")

func (s *Server) validateID(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !idPattern.MatchString(c.Param(param)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + " format"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.dbConn.PingContext(ctx); err != nil {
		health["status"] = "unhealthy"
		health["database"] = "disconnected"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "connected"

	if s.redis != nil {
		if err := s.redis.HealthCheck(ctx); err != nil {
			health["status"] = "degraded"
			health["redis"] = "disconnected"
		} else {
			health["redis"] = "connected"
		}
	}

	health["connections"] = s.hub.ConnCount()

	c.JSON(http.StatusOK, health)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP Request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
