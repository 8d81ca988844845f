// Package worker runs the service's periodic maintenance: the log retention
// reaper and the device offline sweeper.
package worker

import (
	"context"
	"sync"
	"time"

	"spectra-monitor/internal/session"
	"spectra-monitor/internal/store"
	"spectra-monitor/pkg/config"
	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"
)

type WorkerPool struct {
	config   *config.Config
	store    store.Store
	events   *session.Router
	archiver *Archiver // optional; nil skips the archival pass

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(cfg *config.Config, st store.Store, events *session.Router, archiver *Archiver) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		config:   cfg,
		store:    st,
		events:   events,
		archiver: archiver,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (wp *WorkerPool) Start() {
	logger.Info("Starting worker pool")

	wp.wg.Add(1)
	go wp.retentionReaper()

	wp.wg.Add(1)
	go wp.offlineSweeper()
}

func (wp *WorkerPool) Stop() {
	logger.Info("Stopping worker pool...")
	wp.cancel()
	wp.wg.Wait()
	logger.Info("Worker pool stopped")
}

// retentionReaper enforces the log TTL: entries older than the retention
// window are archived to object storage and then purged.
func (wp *WorkerPool) retentionReaper() {
	defer wp.wg.Done()

	logger.Info("Retention reaper started",
		logger.Duration("retention", wp.config.LogRetention))

	ticker := time.NewTicker(wp.config.ReaperInterval)
	defer ticker.Stop()

	// Run once at startup so a long-stopped service catches up promptly.
	wp.reapExpiredLogs()

	for {
		select {
		case <-wp.ctx.Done():
			logger.Info("Retention reaper stopped")
			return
		case <-ticker.C:
			wp.reapExpiredLogs()
		}
	}
}

func (wp *WorkerPool) reapExpiredLogs() {
	ctx, cancel := context.WithTimeout(wp.ctx, 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-wp.config.LogRetention)

	if wp.archiver != nil {
		if err := wp.archiver.ArchiveBefore(ctx, cutoff); err != nil {
			// Archival failure must not block the purge; retention is
			// the hard invariant, archival is best-effort.
			logger.Error("Log archival failed", logger.Err(err))
		}
	}

	purged, err := wp.store.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("Failed to purge expired logs", logger.Err(err))
		return
	}
	if purged > 0 {
		logger.Info("Purged expired logs", logger.Int("count", int(purged)))
	}
}

// offlineSweeper is the backstop behind the router's per-connection grace
// timer: devices whose last_seen predates the grace window are marked
// offline even if the process never observed their disconnect.
func (wp *WorkerPool) offlineSweeper() {
	defer wp.wg.Done()

	logger.Info("Offline sweeper started",
		logger.Duration("grace", wp.config.OfflineGrace))

	ticker := time.NewTicker(wp.config.SweeperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			logger.Info("Offline sweeper stopped")
			return
		case <-ticker.C:
			wp.sweepStaleDevices()
		}
	}
}

func (wp *WorkerPool) sweepStaleDevices() {
	ctx, cancel := context.WithTimeout(wp.ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-wp.config.OfflineGrace)
	ids, err := wp.store.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		logger.Error("Offline sweep failed", logger.Err(err))
		return
	}

	for _, id := range ids {
		wp.events.BroadcastDeviceStatus(ctx, id, models.StatusOffline)
	}
	if len(ids) > 0 {
		logger.Info("Marked stale devices offline", logger.Int("count", len(ids)))
	}
}
