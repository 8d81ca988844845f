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

type createCrashRequest struct {
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type" binding:"required"`
	Title        string `json:"title" binding:"required"`
	Subtitle     string `json:"subtitle"`
	Error        string `json:"error" binding:"required"`
	StackTrace   string `json:"stackTrace"`
	AffectedFile string `json:"affectedFile"`
	EventsCount  int    `json:"eventsCount"`
	UsersCount   int    `json:"usersCount"`
	Trend        []int  `json:"trend"`
}

func (s *Server) handleGetCrashes(c *gin.Context) {
	appID := c.Param("appId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	crashes, err := s.store.FindCrashes(ctx, appID)
	if err != nil {
		logger.Error("Failed to query crash reports", logger.String("app_id", appID), logger.Err(err))
		c.JSON(http.StatusOK, []models.CrashReport{})
		return
	}
	if crashes == nil {
		crashes = []models.CrashReport{}
	}
	c.JSON(http.StatusOK, crashes)
}

func (s *Server) handleCreateCrash(c *gin.Context) {
	appID := c.Param("appId")

	var req createCrashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	crash := models.CrashReport{
		ID:           "crash_" + uuid.NewString(),
		AppID:        appID,
		Timestamp:    req.Timestamp,
		Type:         req.Type,
		Title:        req.Title,
		Subtitle:     req.Subtitle,
		Error:        req.Error,
		StackTrace:   req.StackTrace,
		AffectedFile: req.AffectedFile,
		EventsCount:  req.EventsCount,
		UsersCount:   req.UsersCount,
		Trend:        req.Trend,
	}
	if crash.Timestamp == "" {
		crash.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if crash.EventsCount == 0 {
		crash.EventsCount = 1
	}
	if crash.UsersCount == 0 {
		crash.UsersCount = 1
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.InsertCrash(ctx, &crash); err != nil {
		logger.Error("Failed to store crash report", logger.String("app_id", appID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store crash report"})
		return
	}

	logger.Info("Crash report ingested",
		logger.String("app_id", appID),
		logger.String("crash_id", crash.ID),
		logger.String("type", crash.Type))
	c.JSON(http.StatusCreated, crash)
}

func (s *Server) handleExplainCrash(c *gin.Context) {
	crashID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	crash, err := s.store.FindCrash(ctx, crashID)
	if err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Crash report not found"})
			return
		}
		logger.Error("Failed to load crash report", logger.String("crash_id", crashID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load crash report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"crashId":     crash.ID,
		"explanation": s.insights.ExplainCrash(ctx, crash),
	})
}
