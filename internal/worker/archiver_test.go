package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra-monitor/pkg/db"
	"spectra-monitor/pkg/models"
)

// fakeArchiveStore serves logs oldest-first and removes them only by ID.
type fakeArchiveStore struct {
	mu      sync.Mutex
	entries []models.LogEntry
	deletes [][]string
}

func (s *fakeArchiveStore) LogsBefore(_ context.Context, cutoff time.Time, limit int) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LogEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeArchiveStore) DeleteLogs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.deletes = append(s.deletes, cp)

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []models.LogEntry
	var removed int64
	for _, e := range s.entries {
		if drop[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

type uploadedObject struct {
	bucket string
	name   string
	body   []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	objects []uploadedObject
}

func (u *fakeUploader) PutObject(_ context.Context, bucket, name string, reader io.Reader,
	_ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {

	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects = append(u.objects, uploadedObject{bucket: bucket, name: name, body: body})
	return minio.UploadInfo{Bucket: bucket, Key: name}, nil
}

func gunzipLines(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	var lines []string
	for _, l := range bytes.Split(bytes.TrimSpace(raw), []byte("\n")) {
		lines = append(lines, string(l))
	}
	return lines
}

func TestArchiveBefore_DeletesOnlyArchivedIDs(t *testing.T) {
	boundary := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeArchiveStore{}
	// Three rows share the batch-boundary created_at. With a batch size of
	// 1000 they span two passes; the second pass must still see its rows.
	for i := 0; i < archiveBatchSize+2; i++ {
		ts := boundary.Add(-time.Duration(archiveBatchSize+2-i) * time.Second)
		if i >= archiveBatchSize-1 {
			ts = boundary
		}
		st.entries = append(st.entries, models.LogEntry{
			ID:        "log-" + strconv.Itoa(i),
			DeviceID:  "dev_1",
			Message:   "m",
			CreatedAt: ts,
		})
	}
	up := &fakeUploader{}
	a := &Archiver{uploader: up, store: st}

	require.NoError(t, a.ArchiveBefore(context.Background(), boundary.Add(time.Hour)))

	require.Len(t, st.deletes, 2)
	assert.Len(t, st.deletes[0], archiveBatchSize)
	assert.Len(t, st.deletes[1], 2, "rows sharing the boundary timestamp survive to their own pass")
	assert.Empty(t, st.entries, "every row ends up archived and removed")
}

func TestArchiveBefore_UploadsGzippedJSONLines(t *testing.T) {
	created := time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)
	st := &fakeArchiveStore{entries: []models.LogEntry{
		{ID: "log-1", DeviceID: "dev_1", Level: models.LevelInfo, Message: "boot", CreatedAt: created},
		{ID: "log-2", DeviceID: "dev_1", Level: models.LevelError, Message: "crash", CreatedAt: created.Add(time.Minute)},
		{ID: "log-3", DeviceID: "dev_2", Level: models.LevelInfo, Message: "boot", CreatedAt: created},
	}}
	up := &fakeUploader{}
	a := &Archiver{uploader: up, store: st}

	require.NoError(t, a.ArchiveBefore(context.Background(), created.Add(time.Hour)))

	require.Len(t, up.objects, 2, "one object per device")
	names := map[string]int{}
	for _, obj := range up.objects {
		assert.Equal(t, db.ArchiveBucketName, obj.bucket)
		names[obj.name] = len(gunzipLines(t, obj.body))
	}
	assert.Equal(t, map[string]int{
		"device-logs/dev_1/2026/07/15-000.json.gz": 2,
		"device-logs/dev_2/2026/07/15-000.json.gz": 1,
	}, names)

	require.Len(t, st.deletes, 1)
	assert.ElementsMatch(t, []string{"log-1", "log-2", "log-3"}, st.deletes[0])
}
