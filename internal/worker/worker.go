package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
)

// Syncer runs one catalog auto-sync sweep.
type Syncer interface {
	AutoSyncAll(ctx context.Context) (*engine.AutoSyncSummary, error)
}

// BackupPruner deletes deployment backups whose retention has passed.
type BackupPruner interface {
	DeleteExpiredBackups(now time.Time) (int64, error)
}

// Worker drives the periodic background jobs: the catalog auto-sync
// sweep and expired-backup cleanup. Jobs run on their own tickers so a
// long sweep never delays cleanup.
type Worker struct {
	syncer  Syncer
	backups BackupPruner
	logger  *slog.Logger

	syncInterval    time.Duration
	cleanupInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a worker. A non-positive interval disables that job.
func New(syncer Syncer, backups BackupPruner, syncInterval, cleanupInterval time.Duration, logger *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		syncer:          syncer,
		backups:         backups,
		logger:          logger.With("component", "worker"),
		syncInterval:    syncInterval,
		cleanupInterval: cleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start starts the background loops.
func (w *Worker) Start() {
	if w.syncInterval > 0 {
		w.wg.Add(1)
		go w.runAutoSync()
	}
	if w.cleanupInterval > 0 {
		w.wg.Add(1)
		go w.runBackupCleanup()
	}
	w.logger.Info("worker started",
		"sync_interval", w.syncInterval,
		"cleanup_interval", w.cleanupInterval,
	)
}

// Stop stops the worker gracefully, waiting for a running job to
// finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) runAutoSync() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.autoSync()
		}
	}
}

func (w *Worker) runBackupCleanup() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.cleanupBackups()
		}
	}
}

// autoSync runs one sweep. Failures are logged, never fatal; the next
// tick retries.
func (w *Worker) autoSync() {
	summary, err := w.syncer.AutoSyncAll(w.ctx)
	if err != nil {
		w.logger.Error("auto-sync sweep failed", "error", err)
		return
	}
	w.logger.Info("auto-sync sweep finished",
		"checked", summary.Checked,
		"synced", summary.Synced,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	for _, msg := range summary.Errors {
		w.logger.Warn("auto-sync template failure", "error", msg)
	}
}

func (w *Worker) cleanupBackups() {
	n, err := w.backups.DeleteExpiredBackups(time.Now())
	if err != nil {
		w.logger.Error("backup cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("expired backups removed", "count", n)
	}
}
