package models

import (
	"strings"
	"time"
)

// Platform values accepted for registered applications.
const (
	PlatformIOS         = "ios"
	PlatformAndroid     = "android"
	PlatformFlutter     = "flutter"
	PlatformReactNative = "react-native"
)

// Device status values.
const (
	StatusOnline     = "online"
	StatusBackground = "background"
	StatusOffline    = "offline"
)

// Log levels emitted by monitored devices.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Application is a registered mobile application. The API key is generated
// once at creation and never changes.
type Application struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Platform    string    `json:"platform"`
	APIKey      string    `json:"apiKey"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeviceHealth carries the derived health indicators reported by a device.
type DeviceHealth struct {
	Score             float64 `json:"score"`
	UXScore           float64 `json:"uxScore"`
	PerformanceIndex  float64 `json:"performanceIndex"`
	CrashFreeSessions float64 `json:"crashFreeSessions"`
	ChurnRisk         string  `json:"churnRisk"`
}

// Device is a monitored device instance belonging to one application.
type Device struct {
	ID              string       `json:"id"`
	AppID           string       `json:"appId"`
	Model           string       `json:"model"`
	OSVersion       string       `json:"osVersion"`
	BatteryLevel    int          `json:"batteryLevel"`
	UserName        string       `json:"userName"`
	Status          string       `json:"status"`
	IP              string       `json:"ip,omitempty"`
	SessionDuration string       `json:"sessionDuration,omitempty"`
	Health          DeviceHealth `json:"health"`
	LastSeen        time.Time    `json:"lastSeen"`
}

// LogEntry is one log line emitted by a device. Entries are immutable once
// written and expire after the configured retention window.
type LogEntry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Tag       string    `json:"tag,omitempty"`
	Timestamp string    `json:"timestamp"`
	IsAnomaly bool      `json:"isAnomaly"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeatureFlag is a per-application rollout toggle. Mutations are broadcast
// to every connected viewer, not scoped to a device room.
type FeatureFlag struct {
	ID                string `json:"id"`
	AppID             string `json:"appId"`
	Key               string `json:"key"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Enabled           bool   `json:"enabled"`
	RolloutPercentage int    `json:"rolloutPercentage"`
}

// CrashReport is an aggregated crash group for an application.
type CrashReport struct {
	ID           string `json:"id"`
	AppID        string `json:"appId"`
	Timestamp    string `json:"timestamp"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	Error        string `json:"error"`
	StackTrace   string `json:"stackTrace,omitempty"`
	AffectedFile string `json:"affectedFile,omitempty"`
	EventsCount  int    `json:"eventsCount"`
	UsersCount   int    `json:"usersCount"`
	Trend        []int  `json:"trend,omitempty"`
}

// IsAnomalous reports whether a log line should be flagged for highlighting.
// It is a pure function of level and message, computed exactly once at ingest.
func IsAnomalous(level, message string) bool {
	return level == LevelError || strings.Contains(message, "Exception")
}

// ValidPlatform reports whether p is one of the supported platforms.
func ValidPlatform(p string) bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformFlutter, PlatformReactNative:
		return true
	}
	return false
}

// ValidLogLevel reports whether l is a recognized log level.
func ValidLogLevel(l string) bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}
