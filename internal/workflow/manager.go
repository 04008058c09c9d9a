package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"harvest/internal/config"
	"harvest/internal/importer"
	"harvest/internal/indexer"
	"harvest/internal/logging"
	"harvest/internal/notifications"
	"harvest/internal/processor"
	"harvest/internal/queue"
	"harvest/internal/transcription"
)

// Manager coordinates the daemon's background lanes: the transcription claim
// loop, the periodic processor sweep, the import-and-index cycle, and the
// stale lease reclaimer. Lanes run as independent goroutines and share the
// queue store and the config's timing knobs.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	transcriber *transcription.Worker
	processor   *processor.Processor
	importer    *importer.Importer
	indexer     *indexer.Indexer
	notifier    notifications.Service

	pollInterval  time.Duration
	sweepInterval time.Duration
	retryInterval time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// Components bundles the concrete lane workers the manager orchestrates.
// Nil members disable their lane.
type Components struct {
	Transcriber *transcription.Worker
	Processor   *processor.Processor
	Importer    *importer.Importer
	Indexer     *indexer.Indexer
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, comps Components, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, comps, notifications.NewService(cfg), logger)
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier.
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, comps Components, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		transcriber:   comps.Transcriber,
		processor:     comps.Processor,
		importer:      comps.Importer,
		indexer:       comps.Indexer,
		notifier:      notifier,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		sweepInterval: time.Duration(cfg.Workflow.SweepInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	lanes := []struct {
		name string
		run  func(context.Context, *slog.Logger)
	}{
		{"reclaim", m.runReclaimLane},
	}
	if m.transcriber != nil {
		lanes = append(lanes, struct {
			name string
			run  func(context.Context, *slog.Logger)
		}{"transcription", m.runTranscriptionLane})
	}
	if m.processor != nil {
		lanes = append(lanes, struct {
			name string
			run  func(context.Context, *slog.Logger)
		}{"processing", m.runProcessingLane})
	}
	if m.importer != nil && m.indexer != nil {
		lanes = append(lanes, struct {
			name string
			run  func(context.Context, *slog.Logger)
		}{"import", m.runImportLane})
	}

	m.wg.Add(len(lanes))
	for _, lane := range lanes {
		logger := m.logger.With(logging.String("lane", lane.name))
		go func(run func(context.Context, *slog.Logger), logger *slog.Logger) {
			defer m.wg.Done()
			run(runCtx, logger)
		}(lane.run, logger)
	}
	return nil
}

// Stop terminates background processing, waits for the lanes to exit, and
// releases any leases this host still holds so restarts find a clean queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.store.FailInFlight(ctx, queue.ShutdownReason); err != nil {
		m.logger.Warn("failed to release in-flight jobs on shutdown", logging.Error(err))
	}
}

// Running reports whether the lanes are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent lane error, or empty.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}
