package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spectra-monitor/pkg/models"

	"github.com/lib/pq"
)

// Postgres implements Store on a database/sql connection.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) InsertApp(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO apps (id, name, icon, platform, api_key, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(ctx, query,
		app.ID, app.Name, app.Icon, app.Platform, app.APIKey, app.Description, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert app: %w", err)
	}
	return nil
}

func (p *Postgres) FindApps(ctx context.Context) ([]models.Application, error) {
	query := `
		SELECT id, name, icon, platform, api_key, description, created_at
		FROM apps
		ORDER BY created_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(&a.ID, &a.Name, &a.Icon, &a.Platform, &a.APIKey, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (p *Postgres) FindApp(ctx context.Context, id string) (*models.Application, error) {
	query := `
		SELECT id, name, icon, platform, api_key, description, created_at
		FROM apps
		WHERE id = $1
	`
	var a models.Application
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Icon, &a.Platform, &a.APIKey, &a.Description, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to query app: %w", err)
	}
	return &a, nil
}

func (p *Postgres) DeleteApp(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cascade delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM device_logs WHERE device_id IN (SELECT id FROM devices WHERE app_id = $1)`, id); err != nil {
		return fmt.Errorf("failed to delete app logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE app_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete app devices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crash_reports WHERE app_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete app crash reports: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

const deviceColumns = `id, app_id, model, os_version, battery_level, user_name, status, ip,
	session_duration, health_score, health_ux_score, health_performance_index,
	health_crash_free_sessions, health_churn_risk, last_seen`

func scanDevice(scan func(dest ...interface{}) error) (models.Device, error) {
	var d models.Device
	err := scan(&d.ID, &d.AppID, &d.Model, &d.OSVersion, &d.BatteryLevel, &d.UserName,
		&d.Status, &d.IP, &d.SessionDuration,
		&d.Health.Score, &d.Health.UXScore, &d.Health.PerformanceIndex,
		&d.Health.CrashFreeSessions, &d.Health.ChurnRisk, &d.LastSeen)
	return d, err
}

func (p *Postgres) InsertDevice(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := p.db.ExecContext(ctx, query,
		d.ID, d.AppID, d.Model, d.OSVersion, d.BatteryLevel, d.UserName, d.Status, d.IP,
		d.SessionDuration, d.Health.Score, d.Health.UXScore, d.Health.PerformanceIndex,
		d.Health.CrashFreeSessions, d.Health.ChurnRisk, d.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	return nil
}

func (p *Postgres) FindDevices(ctx context.Context, appID string) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE app_id = $1 ORDER BY last_seen DESC`
	rows, err := p.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (p *Postgres) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	d, err := scanDevice(p.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	return &d, nil
}

func (p *Postgres) UpsertDevice(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			app_id = EXCLUDED.app_id,
			model = EXCLUDED.model,
			os_version = EXCLUDED.os_version,
			battery_level = EXCLUDED.battery_level,
			user_name = EXCLUDED.user_name,
			status = EXCLUDED.status,
			ip = EXCLUDED.ip,
			session_duration = EXCLUDED.session_duration,
			health_score = EXCLUDED.health_score,
			health_ux_score = EXCLUDED.health_ux_score,
			health_performance_index = EXCLUDED.health_performance_index,
			health_crash_free_sessions = EXCLUDED.health_crash_free_sessions,
			health_churn_risk = EXCLUDED.health_churn_risk,
			last_seen = EXCLUDED.last_seen
	`
	_, err := p.db.ExecContext(ctx, query,
		d.ID, d.AppID, d.Model, d.OSVersion, d.BatteryLevel, d.UserName, d.Status, d.IP,
		d.SessionDuration, d.Health.Score, d.Health.UXScore, d.Health.PerformanceIndex,
		d.Health.CrashFreeSessions, d.Health.ChurnRisk, d.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateDeviceStatus(ctx context.Context, id, status string) (bool, error) {
	result, err := p.db.ExecContext(ctx,
		`UPDATE devices SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return false, fmt.Errorf("failed to update device status: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (p *Postgres) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE devices
		SET status = 'offline'
		WHERE last_seen < $1 AND status <> 'offline'
		RETURNING id
	`
	rows, err := p.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to mark stale devices offline: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) InsertLog(ctx context.Context, e *models.LogEntry) error {
	query := `
		INSERT INTO device_logs (id, device_id, level, message, tag, timestamp, is_anomaly, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := p.db.ExecContext(ctx, query,
		e.ID, e.DeviceID, e.Level, e.Message, e.Tag, e.Timestamp, e.IsAnomaly, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

func (p *Postgres) FindLogs(ctx context.Context, deviceID string, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT id, device_id, level, message, tag, timestamp, is_anomaly, created_at
		FROM device_logs
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Level, &e.Message, &e.Tag, &e.Timestamp, &e.IsAnomaly, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Most-recent-N fetched in descending order, reversed here so callers
	// get the window in chronological display order.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

func (p *Postgres) LogsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT id, device_id, level, message, tag, timestamp, is_anomaly, created_at
		FROM device_logs
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Level, &e.Message, &e.Tag, &e.Timestamp, &e.IsAnomaly, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

func (p *Postgres) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM device_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired logs: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (p *Postgres) DeleteLogs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM device_logs WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived logs: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (p *Postgres) InsertFlag(ctx context.Context, f *models.FeatureFlag) error {
	query := `
		INSERT INTO feature_flags (id, app_id, key, name, description, enabled, rollout_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.ExecContext(ctx, query,
		f.ID, f.AppID, f.Key, f.Name, f.Description, f.Enabled, f.RolloutPercentage)
	if err != nil {
		return fmt.Errorf("failed to insert feature flag: %w", err)
	}
	return nil
}

func (p *Postgres) FindFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	query := `
		SELECT id, app_id, key, name, description, enabled, rollout_percentage
		FROM feature_flags
		ORDER BY key
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature flags: %w", err)
	}
	defer rows.Close()

	var flags []models.FeatureFlag
	for rows.Next() {
		var f models.FeatureFlag
		if err := rows.Scan(&f.ID, &f.AppID, &f.Key, &f.Name, &f.Description, &f.Enabled, &f.RolloutPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan flag row: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (p *Postgres) UpdateFlag(ctx context.Context, id string, patch FlagPatch) (*models.FeatureFlag, error) {
	query := `
		UPDATE feature_flags SET
			key = COALESCE($2, key),
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			enabled = COALESCE($5, enabled),
			rollout_percentage = COALESCE($6, rollout_percentage)
		WHERE id = $1
		RETURNING id, app_id, key, name, description, enabled, rollout_percentage
	`
	var f models.FeatureFlag
	err := p.db.QueryRowContext(ctx, query, id,
		patch.Key, patch.Name, patch.Description, patch.Enabled, patch.RolloutPercentage,
	).Scan(&f.ID, &f.AppID, &f.Key, &f.Name, &f.Description, &f.Enabled, &f.RolloutPercentage)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to update feature flag: %w", err)
	}
	return &f, nil
}

func (p *Postgres) InsertCrash(ctx context.Context, c *models.CrashReport) error {
	trend := make([]int64, len(c.Trend))
	for i, v := range c.Trend {
		trend[i] = int64(v)
	}
	query := `
		INSERT INTO crash_reports (id, app_id, timestamp, type, title, subtitle, error,
			stack_trace, affected_file, events_count, users_count, trend)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := p.db.ExecContext(ctx, query,
		c.ID, c.AppID, c.Timestamp, c.Type, c.Title, c.Subtitle, c.Error,
		c.StackTrace, c.AffectedFile, c.EventsCount, c.UsersCount, pq.Array(trend))
	if err != nil {
		return fmt.Errorf("failed to insert crash report: %w", err)
	}
	return nil
}

func (p *Postgres) FindCrash(ctx context.Context, id string) (*models.CrashReport, error) {
	query := `
		SELECT id, app_id, timestamp, type, title, subtitle, error,
			stack_trace, affected_file, events_count, users_count, trend
		FROM crash_reports
		WHERE id = $1
	`
	var c models.CrashReport
	var trend pq.Int64Array
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.AppID, &c.Timestamp, &c.Type, &c.Title, &c.Subtitle,
		&c.Error, &c.StackTrace, &c.AffectedFile, &c.EventsCount, &c.UsersCount, &trend)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to query crash report: %w", err)
	}
	c.Trend = make([]int, len(trend))
	for i, v := range trend {
		c.Trend[i] = int(v)
	}
	return &c, nil
}

func (p *Postgres) FindCrashes(ctx context.Context, appID string) ([]models.CrashReport, error) {
	query := `
		SELECT id, app_id, timestamp, type, title, subtitle, error,
			stack_trace, affected_file, events_count, users_count, trend
		FROM crash_reports
		WHERE app_id = $1
		ORDER BY events_count DESC
	`
	rows, err := p.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query crash reports: %w", err)
	}
	defer rows.Close()

	var crashes []models.CrashReport
	for rows.Next() {
		var c models.CrashReport
		var trend pq.Int64Array
		if err := rows.Scan(&c.ID, &c.AppID, &c.Timestamp, &c.Type, &c.Title, &c.Subtitle,
			&c.Error, &c.StackTrace, &c.AffectedFile, &c.EventsCount, &c.UsersCount, &trend); err != nil {
			return nil, fmt.Errorf("failed to scan crash row: %w", err)
		}
		c.Trend = make([]int, len(trend))
		for i, v := range trend {
			c.Trend[i] = int(v)
		}
		crashes = append(crashes, c)
	}
	return crashes, rows.Err()
}
