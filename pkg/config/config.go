package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             string
	Environment      string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	RedisURL         string
	MinioEndpoint    string
	MinioAccessKey   string
	MinioSecretKey   string
	MinioUseSSL      bool
	GeminiAPIKey     string
	GeminiModel      string

	// LogRetention bounds how long log entries stay queryable before the
	// reaper archives and purges them.
	LogRetention time.Duration

	// OfflineGrace is how long a device may stay without a live session
	// before it is marked offline.
	OfflineGrace time.Duration

	ReaperInterval  time.Duration
	SweeperInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "9090"),
		Environment:      getEnv("GO_ENV", "development"),
		PostgresHost:     getEnv("POSTGRESQL_HOST", "postgres"),
		PostgresPort:     getEnv("POSTGRESQL_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRESQL_DATABASE", "spectramonitor"),
		PostgresUser:     getEnv("POSTGRESQL_USER", "spectra"),
		PostgresPassword: getEnv("POSTGRESQL_PASSWORD", "spectra"),
		RedisURL:         getEnv("REDIS_URL", "redis://redis:6379"),
		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey:   getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:   getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LogRetention:     getDurationEnv("LOG_RETENTION_HOURS", 7*24) * time.Hour,
		OfflineGrace:     getDurationEnv("OFFLINE_GRACE_SECONDS", 30) * time.Second,
		ReaperInterval:   1 * time.Hour,
		SweeperInterval:  30 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var missingVars []string

	if c.Port == "" {
		missingVars = append(missingVars, "PORT")
	}
	if c.PostgresHost == "" {
		missingVars = append(missingVars, "POSTGRESQL_HOST")
	}
	if c.PostgresPort == "" {
		missingVars = append(missingVars, "POSTGRESQL_PORT")
	}
	if c.PostgresDatabase == "" {
		missingVars = append(missingVars, "POSTGRESQL_DATABASE")
	}
	if c.PostgresUser == "" {
		missingVars = append(missingVars, "POSTGRESQL_USER")
	}
	if c.PostgresPassword == "" {
		missingVars = append(missingVars, "POSTGRESQL_PASSWORD")
	}
	if c.RedisURL == "" {
		missingVars = append(missingVars, "REDIS_URL")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if _, err := url.Parse(c.RedisURL); err != nil {
		return fmt.Errorf("invalid REDIS_URL format: %w", err)
	}

	if c.LogRetention <= 0 {
		return fmt.Errorf("LOG_RETENTION_HOURS must be positive")
	}

	return nil
}

func (c *Config) GetPostgresConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDatabase,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultValue)
}
