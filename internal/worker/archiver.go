package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/db"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"

	"github.com/minio/minio-go/v7"
)

const archiveBatchSize = 1000

// objectUploader is the slice of the MinIO client the archiver needs.
type objectUploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader,
		objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// archiveStore is the slice of the log store the archiver needs.
type archiveStore interface {
	LogsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.LogEntry, error)
	DeleteLogs(ctx context.Context, ids []string) (int64, error)
}

// Archiver copies expiring log entries to object storage before removing
// them. Objects are gzip-compressed JSON lines keyed by device and day:
// device-logs/<deviceId>/<year>/<month>/<day>-<batch>.json.gz
type Archiver struct {
	uploader objectUploader
	store    archiveStore
}

func NewArchiver(client *db.MinioClient, st store.Store) *Archiver {
	return &Archiver{uploader: client, store: st}
}

// ArchiveBefore drains all log entries older than cutoff into the archive
// bucket in bounded batches. Each pass deletes by the IDs it just uploaded,
// so rows sharing a created_at with the batch boundary but not yet archived
// are left for the next pass.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) error {
	for batch := 0; ; batch++ {
		logs, err := a.store.LogsBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("failed to load expiring logs: %w", err)
		}
		if len(logs) == 0 {
			return nil
		}

		byDevice := make(map[string][]models.LogEntry)
		ids := make([]string, 0, len(logs))
		for _, e := range logs {
			byDevice[e.DeviceID] = append(byDevice[e.DeviceID], e)
			ids = append(ids, e.ID)
		}

		for deviceID, entries := range byDevice {
			if err := a.storeBatch(ctx, deviceID, batch, entries); err != nil {
				return err
			}
		}

		if _, err := a.store.DeleteLogs(ctx, ids); err != nil {
			return fmt.Errorf("failed to purge archived logs: %w", err)
		}

		logger.Info("Archived log batch",
			logger.Int("entries", len(logs)),
			logger.Int("devices", len(byDevice)))

		if len(logs) < archiveBatchSize {
			return nil
		}
	}
}

func (a *Archiver) storeBatch(ctx context.Context, deviceID string, batch int, entries []models.LogEntry) error {
	objectName := fmt.Sprintf("device-logs/%s/%s-%03d.json.gz",
		deviceID,
		entries[0].CreatedAt.Format("2006/01/02"),
		batch,
	)

	var buf bytes.Buffer
	gzipWriter, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			gzipWriter.Close()
			return fmt.Errorf("failed to marshal log entry: %w", err)
		}
		if _, err := gzipWriter.Write(append(line, '\n')); err != nil {
			gzipWriter.Close()
			return fmt.Errorf("failed to write log entry: %w", err)
		}
	}

	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}

	_, err = a.uploader.PutObject(ctx, db.ArchiveBucketName, objectName, &buf, int64(buf.Len()),
		minio.PutObjectOptions{
			ContentType:     "application/gzip",
			ContentEncoding: "gzip",
		})
	if err != nil {
		return fmt.Errorf("failed to upload log archive %s: %w", objectName, err)
	}

	return nil
}
