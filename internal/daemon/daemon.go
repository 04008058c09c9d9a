package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"harvest/internal/api"
	"harvest/internal/config"
	"harvest/internal/importer"
	"harvest/internal/indexer"
	"harvest/internal/library"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/monitor"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
	"harvest/internal/workflow"
)

// Daemon coordinates the background lanes and the control API, and enforces
// single-instance execution via a lock file in the data directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	catalog  *library.Store
	stages   *stagestore.Store
	workflow *workflow.Manager
	importer *importer.Importer
	indexer  *indexer.Indexer

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer
	events    *eventHub

	running atomic.Bool
	cancel  context.CancelFunc
}

// Components bundles the daemon's collaborators.
type Components struct {
	Store    *queue.Store
	Catalog  *library.Store
	Stages   *stagestore.Store
	Workflow *workflow.Manager
	Importer *importer.Importer
	Indexer  *indexer.Indexer
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Store == nil || comps.Workflow == nil {
		return nil, errors.New("daemon requires config, queue store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "harvestd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    comps.Store,
		catalog:  comps.Catalog,
		stages:   comps.Stages,
		workflow: comps.Workflow,
		importer: comps.Importer,
		indexer:  comps.Indexer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = srv
	return d, nil
}

// Start acquires the instance lock, launches the workflow lanes, the event
// watcher, and the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another harvest daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.events = newEventHub(d.store, d.cfg, d.logger)
	d.events.start(runCtx)

	if d.apiServer != nil {
		if err := d.apiServer.start(runCtx); err != nil {
			d.workflow.Stop()
			cancel()
			d.cancel = nil
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.apiServer != nil {
		d.apiServer.stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.catalog != nil {
		errs = append(errs, d.catalog.Close())
	}
	return errors.Join(errs...)
}

// Addr returns the control API's bound address, empty when the API is off.
func (d *Daemon) Addr() string {
	if d.apiServer == nil {
		return ""
	}
	return d.apiServer.addr()
}

// Status aggregates daemon runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	wf := d.workflow.Status(ctx)
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Host:         d.cfg.Host(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Workflow: api.WorkflowStatus{
			Running:    wf.Running,
			LastError:  wf.LastError,
			QueueStats: make(map[string]api.QueueStats, len(wf.QueueStats)),
		},
	}
	for kind, stats := range wf.QueueStats {
		status.Workflow.QueueStats[kind] = api.FromStats(stats)
	}

	if d.stages != nil {
		if depths, err := d.stages.Depths(); err == nil {
			view := api.FromDepths(depths)
			status.Stages = &view
			metrics.UpdateStageDepths(depths)
		} else {
			d.logger.Warn("failed to read stage depths", logging.Error(err))
		}
	}
	if d.catalog != nil {
		if counts, err := d.catalog.Counts(ctx); err == nil {
			view := api.FromCounts(counts)
			status.Library = &view
		} else {
			d.logger.Warn("failed to read library counts", logging.Error(err))
		}
	}
	if runtime, err := monitor.LocalRuntime(d.cfg.Paths.StoreDir); err == nil {
		status.Runtime = &runtime
	}
	return status
}
