// Package viewer provides the client side of a monitoring session: a
// reconnecting websocket client and a bounded buffer for the log stream
// it receives.
package viewer

import (
	"sync"

	"spectra-monitor/pkg/models"
)

// DefaultBufferCapacity is the number of log entries a session view
// retains before the oldest are evicted.
const DefaultBufferCapacity = 500

// LogBuffer is a fixed-capacity FIFO over live log entries. When full,
// appending evicts the oldest entry. While paused, incoming entries are
// discarded rather than queued; resuming does not backfill what arrived
// during the pause.
type LogBuffer struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	capacity int
	paused   bool
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &LogBuffer{
		entries:  make([]models.LogEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, evicting the oldest if the buffer is full.
// Entries arriving while paused are dropped.
func (b *LogBuffer) Append(entry models.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return
	}
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:b.capacity-1]
	}
	b.entries = append(b.entries, entry)
}

// Pause freezes the buffer so the view stays stable while the user
// inspects it. Log entries arriving while paused are discarded.
func (b *LogBuffer) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume unfreezes the buffer. Entries dropped during the pause are gone.
func (b *LogBuffer) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
}

func (b *LogBuffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Snapshot returns the buffered entries oldest-first.
func (b *LogBuffer) Snapshot() []models.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear empties the buffer, typically when the viewer switches devices.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
}
