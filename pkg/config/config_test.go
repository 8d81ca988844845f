package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.LogRetention)
	assert.Equal(t, 30*time.Second, cfg.OfflineGrace)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8123")
	t.Setenv("LOG_RETENTION_HOURS", "48")
	t.Setenv("OFFLINE_GRACE_SECONDS", "5")
	t.Setenv("POSTGRESQL_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8123", cfg.Port)
	assert.Equal(t, 48*time.Hour, cfg.LogRetention)
	assert.Equal(t, 5*time.Second, cfg.OfflineGrace)
	assert.Equal(t, "db.internal", cfg.PostgresHost)
}

func TestLoad_IgnoresInvalidDuration(t *testing.T) {
	t.Setenv("LOG_RETENTION_HOURS", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.LogRetention)
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{Port: "9090"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRESQL_HOST")
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestGetPostgresConnString(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "localhost",
		PostgresPort:     "5432",
		PostgresUser:     "spectra",
		PostgresPassword: "secret",
		PostgresDatabase: "spectramonitor",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=spectra password=secret dbname=spectramonitor sslmode=disable",
		cfg.GetPostgresConnString())
}
