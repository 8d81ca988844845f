package viewer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra-monitor/pkg/models"
)

func entry(n int) models.LogEntry {
	return models.LogEntry{
		ID:       fmt.Sprintf("log-%d", n),
		DeviceID: "dev-1",
		Level:    models.LevelInfo,
		Message:  fmt.Sprintf("message %d", n),
	}
}

func TestLogBuffer_EvictsOldestWhenFull(t *testing.T) {
	b := NewLogBuffer(500)

	for i := 1; i <= 501; i++ {
		b.Append(entry(i))
	}

	require.Equal(t, 500, b.Len())

	snap := b.Snapshot()
	assert.Equal(t, "log-2", snap[0].ID, "oldest entry must be evicted first")
	assert.Equal(t, "log-501", snap[len(snap)-1].ID)
}

func TestLogBuffer_SnapshotIsChronological(t *testing.T) {
	b := NewLogBuffer(10)
	for i := 1; i <= 3; i++ {
		b.Append(entry(i))
	}

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	for i, e := range snap {
		assert.Equal(t, fmt.Sprintf("log-%d", i+1), e.ID)
	}
}

func TestLogBuffer_PauseDiscardsArrivals(t *testing.T) {
	b := NewLogBuffer(10)
	b.Append(entry(1))

	b.Pause()
	require.True(t, b.Paused())

	b.Append(entry(2))
	b.Append(entry(3))
	assert.Equal(t, 1, b.Len(), "entries arriving while paused are dropped")

	b.Resume()
	require.False(t, b.Paused())

	// No backfill: what arrived during the pause is gone for good.
	assert.Equal(t, 1, b.Len())

	b.Append(entry(4))
	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "log-1", snap[0].ID)
	assert.Equal(t, "log-4", snap[1].ID)
}

func TestLogBuffer_DefaultCapacity(t *testing.T) {
	b := NewLogBuffer(0)
	for i := 0; i < DefaultBufferCapacity+5; i++ {
		b.Append(entry(i))
	}
	assert.Equal(t, DefaultBufferCapacity, b.Len())
}

func TestLogBuffer_Clear(t *testing.T) {
	b := NewLogBuffer(10)
	b.Append(entry(1))
	b.Append(entry(2))

	b.Clear()
	assert.Equal(t, 0, b.Len())
}
