package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createAppRequest struct {
	Name        string `json:"name" binding:"required"`
	Platform    string `json:"platform" binding:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// newAPIKey generates the immutable key handed out once at app creation.
func newAPIKey() string {
	return "sk_live_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Server) handleGetApps(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	apps, err := s.store.FindApps(ctx)
	if err != nil {
		// Telemetry reads degrade to empty rather than erroring.
		logger.Error("Failed to query apps", logger.Err(err))
		c.JSON(http.StatusOK, []models.Application{})
		return
	}
	if apps == nil {
		apps = []models.Application{}
	}
	c.JSON(http.StatusOK, apps)
}

func (s *Server) handleCreateApp(c *gin.Context) {
	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !models.ValidPlatform(req.Platform) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported platform"})
		return
	}

	app := models.Application{
		ID:          "app_" + uuid.NewString(),
		Name:        req.Name,
		Icon:        req.Icon,
		Platform:    req.Platform,
		APIKey:      newAPIKey(),
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.InsertApp(ctx, &app); err != nil {
		logger.Error("Failed to create app", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create app"})
		return
	}

	logger.Info("Application registered",
		logger.String("app_id", app.ID),
		logger.String("platform", app.Platform))
	c.JSON(http.StatusCreated, app)
}

func (s *Server) handleDeleteApp(c *gin.Context) {
	appID := c.Param("appId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	// Cascade: devices, their logs and crash reports go with the app.
	if err := s.store.DeleteApp(ctx, appID); err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "App not found"})
			return
		}
		logger.Error("Failed to delete app", logger.String("app_id", appID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete app"})
		return
	}

	logger.Info("Application deleted", logger.String("app_id", appID))
	c.Status(http.StatusNoContent)
}
