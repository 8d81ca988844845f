// Package store owns all persisted telemetry records. Each call is atomic;
// sequences such as persist-then-broadcast are composed by callers and are
// not transactional as a whole.
package store

import (
	"context"
	"errors"
	"time"

	"spectra-monitor/pkg/models"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("store: record not found")

// FlagPatch is a partial feature-flag update. Nil fields are left unchanged.
type FlagPatch struct {
	Key               *string
	Name              *string
	Description       *string
	Enabled           *bool
	RolloutPercentage *int
}

// Store is the persistence boundary for applications, devices, logs,
// feature flags and crash reports.
type Store interface {
	InsertApp(ctx context.Context, app *models.Application) error
	FindApps(ctx context.Context) ([]models.Application, error)
	FindApp(ctx context.Context, id string) (*models.Application, error)
	// DeleteApp removes an application together with its devices, their
	// logs and its crash reports in a single transaction.
	DeleteApp(ctx context.Context, id string) error

	InsertDevice(ctx context.Context, d *models.Device) error
	FindDevices(ctx context.Context, appID string) ([]models.Device, error)
	FindDevice(ctx context.Context, id string) (*models.Device, error)
	// UpsertDevice creates or replaces the device record. Used by the
	// realtime connect path, which always forces status online.
	UpsertDevice(ctx context.Context, d *models.Device) error
	// UpdateDeviceStatus sets only the status column. Reports whether a
	// row was updated.
	UpdateDeviceStatus(ctx context.Context, id, status string) (bool, error)
	// MarkStaleOffline transitions devices to offline whose last_seen is
	// before cutoff and that are not already offline. Returns the IDs of
	// the devices it transitioned.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error)

	InsertLog(ctx context.Context, e *models.LogEntry) error
	// FindLogs returns the most recent limit entries for a device in
	// chronological order (oldest of the window first).
	FindLogs(ctx context.Context, deviceID string, limit int) ([]models.LogEntry, error)
	// LogsBefore returns up to limit entries created before cutoff,
	// oldest first. Used by the archival pass of the retention reaper.
	LogsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LogEntry, error)
	// DeleteLogsBefore purges entries created before cutoff and returns
	// the number of rows removed.
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteLogs removes exactly the entries with the given IDs and
	// returns the number of rows removed. Used after an archive batch is
	// uploaded so only the archived rows disappear.
	DeleteLogs(ctx context.Context, ids []string) (int64, error)

	InsertFlag(ctx context.Context, f *models.FeatureFlag) error
	FindFlags(ctx context.Context) ([]models.FeatureFlag, error)
	UpdateFlag(ctx context.Context, id string, patch FlagPatch) (*models.FeatureFlag, error)

	InsertCrash(ctx context.Context, c *models.CrashReport) error
	FindCrash(ctx context.Context, id string) (*models.CrashReport, error)
	FindCrashes(ctx context.Context, appID string) ([]models.CrashReport, error)
}
