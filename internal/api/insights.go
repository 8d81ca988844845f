package api

import (
	"context"
	"net/http"
	"time"

	"spectra-monitor/pkg/logger"

	"github.com/gin-gonic/gin"
)

// insightsLogWindow is how many recent log lines are handed to the AI
// service for summary and analysis requests.
const insightsLogWindow = 200

func (s *Server) handleSummarizeLogs(c *gin.Context) {
	deviceID := c.Param("deviceId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	logs, err := s.store.FindLogs(ctx, deviceID, insightsLogWindow)
	if err != nil {
		logger.Error("Failed to load logs for summary",
			logger.String("device_id", deviceID), logger.Err(err))
		logs = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId": deviceID,
		"summary":  s.insights.SummarizeLogs(ctx, logs),
	})
}

func (s *Server) handleAnalyzeLogs(c *gin.Context) {
	deviceID := c.Param("deviceId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 45*time.Second)
	defer cancel()

	logs, err := s.store.FindLogs(ctx, deviceID, insightsLogWindow)
	if err != nil {
		logger.Error("Failed to load logs for analysis",
			logger.String("device_id", deviceID), logger.Err(err))
		logs = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId": deviceID,
		"analysis": s.insights.AnalyzeLogs(ctx, logs),
	})
}
