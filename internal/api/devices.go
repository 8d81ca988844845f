package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

type createDeviceRequest struct {
	Model        string              `json:"model" binding:"required"`
	OSVersion    string              `json:"osVersion"`
	BatteryLevel int                 `json:"batteryLevel"`
	UserName     string              `json:"userName"`
	IP           string              `json:"ip"`
	Health       models.DeviceHealth `json:"health"`
}

func (s *Server) handleGetDevices(c *gin.Context) {
	appID := c.Param("appId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	devices, err := s.store.FindDevices(ctx, appID)
	if err != nil {
		logger.Error("Failed to query devices", logger.String("app_id", appID), logger.Err(err))
		c.JSON(http.StatusOK, []models.Device{})
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) handleCreateDevice(c *gin.Context) {
	appID := c.Param("appId")

	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	device := models.Device{
		ID:           "dev_" + uuid.NewString(),
		AppID:        appID,
		Model:        req.Model,
		OSVersion:    req.OSVersion,
		BatteryLevel: req.BatteryLevel,
		UserName:     req.UserName,
		Status:       models.StatusOnline,
		IP:           req.IP,
		Health:       req.Health,
		LastSeen:     time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.store.InsertDevice(ctx, &device); err != nil {
		logger.Error("Failed to create device", logger.String("app_id", appID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
		return
	}

	c.JSON(http.StatusCreated, device)
}

func (s *Server) handleGetDevice(c *gin.Context) {
	deviceID := c.Param("deviceId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	device, err := s.store.FindDevice(ctx, deviceID)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	} else if err != nil {
		logger.Error("Failed to query device", logger.String("device_id", deviceID), logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve device"})
		return
	}

	c.JSON(http.StatusOK, device)
}

func (s *Server) handleGetLogs(c *gin.Context) {
	deviceID := c.Param("deviceId")

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	logs, err := s.store.FindLogs(ctx, deviceID, limit)
	if err != nil {
		logger.Error("Failed to query logs", logger.String("device_id", deviceID), logger.Err(err))
		c.JSON(http.StatusOK, []models.LogEntry{})
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
