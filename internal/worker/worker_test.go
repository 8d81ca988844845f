package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra-monitor/internal/session"
	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/config"
	"spectra-monitor/pkg/models"
	"spectra-monitor/pkg/protocol"
)

// stubStore implements only the calls the workers make; anything else
// panics through the embedded nil interface.
type stubStore struct {
	store.Store

	mu            sync.Mutex
	deleteCutoffs []time.Time
	sweepCutoffs  []time.Time
	staleIDs      []string
}

func (s *stubStore) DeleteLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCutoffs = append(s.deleteCutoffs, cutoff)
	return 3, nil
}

func (s *stubStore) MarkStaleOffline(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepCutoffs = append(s.sweepCutoffs, cutoff)
	return s.staleIDs, nil
}

func (s *stubStore) deletes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.deleteCutoffs))
	copy(out, s.deleteCutoffs)
	return out
}

func newTestPool(st store.Store, staleGraceCfg *config.Config) (*WorkerPool, *session.Hub) {
	hub := session.NewHub()
	events := session.NewRouter(hub, st, nil, 0)
	return NewWorkerPool(staleGraceCfg, st, events, nil), hub
}

func TestReapExpiredLogs_UsesRetentionCutoff(t *testing.T) {
	st := &stubStore{}
	cfg := &config.Config{LogRetention: 48 * time.Hour}
	wp, _ := newTestPool(st, cfg)

	before := time.Now().Add(-cfg.LogRetention)
	wp.reapExpiredLogs()
	after := time.Now().Add(-cfg.LogRetention)

	deletes := st.deletes()
	require.Len(t, deletes, 1)
	assert.False(t, deletes[0].Before(before))
	assert.False(t, deletes[0].After(after))
}

func TestSweepStaleDevices_BroadcastsOffline(t *testing.T) {
	st := &stubStore{staleIDs: []string{"dev_1", "dev_2"}}
	cfg := &config.Config{OfflineGrace: 30 * time.Second}
	wp, hub := newTestPool(st, cfg)

	viewer := hub.Register()
	wp.sweepStaleDevices()

	seen := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-viewer.Outbound():
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(msg, &env))
			require.Equal(t, protocol.EventDeviceUpdate, env.Event)

			var update protocol.StatusUpdate
			require.NoError(t, json.Unmarshal(env.Data, &update))
			seen[update.ID] = update.Status
		case <-time.After(time.Second):
			t.Fatal("missing offline broadcast")
		}
	}

	assert.Equal(t, map[string]string{
		"dev_1": models.StatusOffline,
		"dev_2": models.StatusOffline,
	}, seen)
}

func TestWorkerPool_StartStop(t *testing.T) {
	st := &stubStore{}
	cfg := &config.Config{
		LogRetention:    24 * time.Hour,
		OfflineGrace:    30 * time.Second,
		ReaperInterval:  time.Hour,
		SweeperInterval: time.Hour,
	}
	wp, _ := newTestPool(st, cfg)

	wp.Start()
	// The reaper runs one pass at startup before settling on its ticker.
	require.Eventually(t, func() bool {
		return len(st.deletes()) == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		wp.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
