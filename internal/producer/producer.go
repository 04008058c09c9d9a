package producer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/stagestore"
)

// Source is the pluggable scraping contract. Discovery and download are
// separate so each can be resumed independently; the runner owns manifests,
// throttling, and the raw/ drop.
type Source interface {
	// Name identifies the source; it names the raw/ subdirectory and the
	// manifest.
	Name() string

	// Discover enumerates currently discoverable items.
	Discover(ctx context.Context) ([]stagestore.ManifestEntry, error)

	// Fetch downloads one discovered item as a normalized raw record.
	Fetch(ctx context.Context, entry stagestore.ManifestEntry) (*stagestore.RawRecord, error)
}

// Runner drives a source through discovery and download against the shared
// store.
type Runner struct {
	store  *stagestore.Store
	logger *slog.Logger
}

// NewRunner constructs a producer runner.
func NewRunner(store *stagestore.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:  store,
		logger: logging.NewComponentLogger(logger, "producer"),
	}
}

// RunResult summarizes one producer run.
type RunResult struct {
	Discovered int `json:"discovered"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
}

// Run merges the source's discovery into its manifest, then downloads every
// pending entry while honoring the source's minimum inter-request interval.
// A fetch failure marks its entry skipped with detail and the run continues;
// nothing is ever re-fetched once downloaded.
func (r *Runner) Run(ctx context.Context, src Source, cfg config.Source) (RunResult, error) {
	var result RunResult
	log := r.logger.With(logging.String(logging.FieldSource, src.Name()))

	discovered, err := src.Discover(ctx)
	if err != nil {
		return result, fmt.Errorf("discover %s: %w", src.Name(), err)
	}

	var pending []stagestore.ManifestEntry
	if _, err := r.store.UpdateManifest(src.Name(), func(m *stagestore.Manifest) error {
		result.Discovered = m.Merge(discovered)
		pending = m.Pending()
		return nil
	}); err != nil {
		return result, err
	}
	log.Info("discovery merged",
		logging.Int("new", result.Discovered),
		logging.Int("pending", len(pending)),
	)

	throttle := newThrottle(cfg.MinRequestIntervalMS)
	for _, entry := range pending {
		if err := throttle.wait(ctx); err != nil {
			return result, err
		}
		if err := r.download(ctx, src, entry, log, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *Runner) download(ctx context.Context, src Source, entry stagestore.ManifestEntry, log *slog.Logger, result *RunResult) error {
	record, err := src.Fetch(ctx, entry)
	if err == nil && (record == nil || record.Filename == "") {
		err = fmt.Errorf("source returned no record")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("fetch failed",
			logging.String("entry", entry.ID),
			logging.Error(err),
		)
		result.Skipped++
		if _, mErr := r.store.UpdateManifest(src.Name(), func(m *stagestore.Manifest) error {
			m.MarkSkipped(entry.ID, err.Error())
			return nil
		}); mErr != nil {
			return mErr
		}
		return r.store.AppendDownloadLog(src.Name(), stagestore.DownloadLogEntry{
			ID:     entry.ID,
			URL:    entry.URL,
			Status: string(stagestore.ManifestSkipped),
			Detail: err.Error(),
		})
	}

	path := filepath.Join(r.store.RawDir(src.Name()), record.Filename)
	if err := r.store.WriteJSON(path, record); err != nil {
		return fmt.Errorf("write raw record %s: %w", record.Filename, err)
	}

	result.Downloaded++
	metrics.RecordsDownloaded.WithLabelValues(src.Name()).Inc()
	if _, err := r.store.UpdateManifest(src.Name(), func(m *stagestore.Manifest) error {
		m.MarkDownloaded(entry.ID)
		return nil
	}); err != nil {
		return err
	}
	return r.store.AppendDownloadLog(src.Name(), stagestore.DownloadLogEntry{
		ID:     entry.ID,
		URL:    entry.URL,
		Status: string(stagestore.ManifestDownloaded),
	})
}

// throttle enforces a politeness floor between outbound requests, per
// source.
type throttle struct {
	interval time.Duration
	last     time.Time
}

func newThrottle(intervalMS int) *throttle {
	if intervalMS <= 0 {
		return &throttle{}
	}
	return &throttle{interval: time.Duration(intervalMS) * time.Millisecond}
}

func (t *throttle) wait(ctx context.Context) error {
	if t.interval <= 0 {
		return ctx.Err()
	}
	if !t.last.IsZero() {
		if remaining := t.interval - time.Since(t.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	t.last = time.Now()
	return nil
}
