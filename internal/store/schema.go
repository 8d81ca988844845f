package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS apps (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		icon        TEXT NOT NULL DEFAULT '',
		platform    TEXT NOT NULL,
		api_key     TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id                         TEXT PRIMARY KEY,
		app_id                     TEXT NOT NULL,
		model                      TEXT NOT NULL DEFAULT '',
		os_version                 TEXT NOT NULL DEFAULT '',
		battery_level              INTEGER NOT NULL DEFAULT 0,
		user_name                  TEXT NOT NULL DEFAULT '',
		status                     TEXT NOT NULL DEFAULT 'offline',
		ip                         TEXT NOT NULL DEFAULT '',
		session_duration           TEXT NOT NULL DEFAULT '',
		health_score               DOUBLE PRECISION NOT NULL DEFAULT 0,
		health_ux_score            DOUBLE PRECISION NOT NULL DEFAULT 0,
		health_performance_index   DOUBLE PRECISION NOT NULL DEFAULT 0,
		health_crash_free_sessions DOUBLE PRECISION NOT NULL DEFAULT 0,
		health_churn_risk          TEXT NOT NULL DEFAULT '',
		last_seen                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_devices_app_id ON devices (app_id)`,
	`CREATE TABLE IF NOT EXISTS device_logs (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL,
		level      TEXT NOT NULL,
		message    TEXT NOT NULL,
		tag        TEXT NOT NULL DEFAULT '',
		timestamp  TEXT NOT NULL DEFAULT '',
		is_anomaly BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_logs_device_created ON device_logs (device_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_device_logs_created ON device_logs (created_at)`,
	`CREATE TABLE IF NOT EXISTS feature_flags (
		id                 TEXT PRIMARY KEY,
		app_id             TEXT NOT NULL DEFAULT '',
		key                TEXT NOT NULL,
		name               TEXT NOT NULL DEFAULT '',
		description        TEXT NOT NULL DEFAULT '',
		enabled            BOOLEAN NOT NULL DEFAULT FALSE,
		rollout_percentage INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS crash_reports (
		id            TEXT PRIMARY KEY,
		app_id        TEXT NOT NULL,
		timestamp     TEXT NOT NULL DEFAULT '',
		type          TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		subtitle      TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		stack_trace   TEXT NOT NULL DEFAULT '',
		affected_file TEXT NOT NULL DEFAULT '',
		events_count  INTEGER NOT NULL DEFAULT 0,
		users_count   INTEGER NOT NULL DEFAULT 0,
		trend         INTEGER[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crash_reports_app_id ON crash_reports (app_id)`,
}

// Migrate creates the telemetry tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
