package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"harvest/internal/indexer"
	"harvest/internal/logging"
	"harvest/internal/queue"
)

// runTranscriptionLane claims and executes transcribe jobs one at a time,
// sleeping the poll interval when the queue is empty.
func (m *Manager) runTranscriptionLane(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := m.transcriber.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("transcription job failed", logging.Error(err))
			if sleepCtx(ctx, m.retryInterval) != nil {
				return
			}
			continue
		}
		if !worked {
			if sleepCtx(ctx, m.pollInterval) != nil {
				return
			}
		}
	}
}

// runProcessingLane sweeps raw/ into ready/ on a fixed interval. A sweep
// error delays the next attempt by the error retry interval instead.
func (m *Manager) runProcessingLane(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		result, err := m.processor.Sweep(ctx)
		delay := m.sweepInterval
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("sweep failed", logging.Error(err))
			delay = m.retryInterval
		} else if result.Processed > 0 || result.Errors > 0 {
			logger.Info("sweep finished",
				logging.Int("processed", result.Processed),
				logging.Int("skipped", result.Skipped),
				logging.Int("errors", result.Errors),
			)
		}
		if sleepCtx(ctx, delay) != nil {
			return
		}
	}
}

// runImportLane imports ready packages into the catalog and then drains the
// index queue, on the sweep interval.
func (m *Manager) runImportLane(ctx context.Context, logger *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.importCycle(ctx, logger); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("import cycle failed", logging.Error(err))
			if m.notifier != nil {
				if nErr := m.notifier.NotifyError(ctx, err, "import"); nErr != nil {
					logger.Warn("error notification failed", logging.Error(nErr))
				}
			}
			if sleepCtx(ctx, m.retryInterval) != nil {
				return
			}
			continue
		}
		if sleepCtx(ctx, m.sweepInterval) != nil {
			return
		}
	}
}

func (m *Manager) importCycle(ctx context.Context, logger *slog.Logger) error {
	imported, err := m.importer.ImportAll(ctx)
	if err != nil {
		return err
	}
	if imported.Created > 0 || imported.Duplicates > 0 || imported.Errors > 0 {
		logger.Info("import finished",
			logging.Int("created", imported.Created),
			logging.Int("duplicates", imported.Duplicates),
			logging.Int("errors", imported.Errors),
		)
		if m.notifier != nil {
			if err := m.notifier.NotifyImportCompleted(ctx, imported.Created, imported.Duplicates, imported.Errors); err != nil {
				logger.Warn("import notification failed", logging.Error(err))
			}
		}
	}

	batchSize := m.cfg.Indexing.BatchSize
	if batchSize <= 0 {
		batchSize = indexer.DefaultBatchSize
	}
	drainer := &Drainer{
		Process: func(ctx context.Context, count int) (int, int, error) {
			batch, err := m.indexer.ProcessBatch(ctx, count)
			return batch.Processed, batch.Remaining, err
		},
		BatchSize:   batchSize,
		RetryDelay:  m.retryInterval,
		RetryBudget: m.cfg.Workflow.RetryBudget,
		Logger:      logger,
	}
	drainStart := time.Now()
	drained, err := drainer.Drain(ctx)
	if err != nil {
		return err
	}
	if drained.Processed > 0 {
		logger.Info("index queue drained",
			logging.Int("processed", drained.Processed),
			logging.Int("batches", drained.Batches),
		)
		if m.notifier != nil {
			if err := m.notifier.NotifyQueueDrained(ctx, string(queue.KindIndex), drained.Processed, time.Since(drainStart)); err != nil {
				logger.Warn("drain notification failed", logging.Error(err))
			}
		}
	}
	return nil
}

// runReclaimLane periodically fails processing jobs whose workers stopped
// heartbeating so their entries surface for operator retry.
func (m *Manager) runReclaimLane(ctx context.Context, logger *slog.Logger) {
	timeout := time.Duration(m.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		return
	}
	interval := time.Duration(m.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = timeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-timeout)
		reclaimed, err := m.store.ReclaimStale(ctx, cutoff)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("stale lease reclaim failed", logging.Error(err))
			continue
		}
		if reclaimed > 0 {
			logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
		}
	}
}

// StatusSummary is the lightweight daemon diagnostics block served by the
// status endpoint.
type StatusSummary struct {
	Running    bool                   `json:"running"`
	LastError  string                 `json:"last_error,omitempty"`
	QueueStats map[string]queue.Stats `json:"queue_stats"`
}

// Status reports lane state and per-kind queue statistics.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	summary := StatusSummary{
		Running:    m.Running(),
		LastError:  m.LastError(),
		QueueStats: make(map[string]queue.Stats, 2),
	}
	for _, kind := range []queue.Kind{queue.KindTranscribe, queue.KindIndex} {
		stats, err := m.store.Stats(ctx, kind)
		if err != nil {
			m.logger.Warn("failed to read queue stats", logging.Error(err))
			continue
		}
		summary.QueueStats[string(kind)] = stats
	}
	return summary
}
