package api

import (
	"context"
	"net/http"
	"time"

	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createFlagRequest struct {
	AppID             string `json:"appId"`
	Key               string `json:"key" binding:"required"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Enabled           bool   `json:"enabled"`
	RolloutPercentage int    `json:"rolloutPercentage" binding:"min=0,max=100"`
}

type updateFlagRequest struct {
	Key               *string `json:"key"`
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Enabled           *bool   `json:"enabled"`
	RolloutPercentage *int    `json:"rolloutPercentage"`
}

func (s *Server) handleGetFlags(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	flags, err := s.store.FindFlags(ctx)
	if err != nil {
		logger.Error("Failed to query feature flags", logger.Err(err))
		c.JSON(http.StatusOK, []models.FeatureFlag{})
		return
	}
	if flags == nil {
		flags = []models.FeatureFlag{}
	}
	c.JSON(http.StatusOK, flags)
}

func (s *Server) handleCreateFlag(c *gin.Context) {
	var req createFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	flag := models.FeatureFlag{
		ID:                "flag_" + uuid.NewString(),
		AppID:             req.AppID,
		Key:               req.Key,
		Name:              req.Name,
		Description:       req.Description,
		Enabled:           req.Enabled,
		RolloutPercentage: req.RolloutPercentage,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.InsertFlag(ctx, &flag); err != nil {
		logger.Error("Failed to create feature flag", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create flag"})
		return
	}

	// Every flag mutation is pushed to all connected viewers synchronously.
	s.events.BroadcastFlag(ctx, &flag)

	c.JSON(http.StatusCreated, flag)
}

func (s *Server) handleUpdateFlag(c *gin.Context) {
	id := c.Param("id")

	var req updateFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.RolloutPercentage != nil && (*req.RolloutPercentage < 0 || *req.RolloutPercentage > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rolloutPercentage must be between 0 and 100"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	flag, err := s.store.UpdateFlag(ctx, id, store.FlagPatch{
		Key:               req.Key,
		Name:              req.Name,
		Description:       req.Description,
		Enabled:           req.Enabled,
		RolloutPercentage: req.RolloutPercentage,
	})
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flag not found"})
		return
	} else if err != nil {
		logger.Error("Failed to update feature flag", logger.String("flag_id", id), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update flag"})
		return
	}

	s.events.BroadcastFlag(ctx, flag)

	c.JSON(http.StatusOK, flag)
}
