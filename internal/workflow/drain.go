package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"harvest/internal/logging"
	"harvest/internal/services"
)

// Drainer repeatedly invokes a batch processing function until the backlog
// behind it is empty. Transient failures back off for a fixed delay and
// retry; the retry budget bounds consecutive transient failures, and
// exhausting it surfaces the last error.
type Drainer struct {
	// Process handles up to count items and reports how many it handled and
	// how many remain behind it.
	Process func(ctx context.Context, count int) (processed, remaining int, err error)

	BatchSize   int
	RetryDelay  time.Duration
	RetryBudget int
	Logger      *slog.Logger
}

// DrainResult summarizes one drain loop.
type DrainResult struct {
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
}

// Drain loops Process until remaining reaches zero. A batch that makes
// progress resets the retry budget.
func (d *Drainer) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		processed, remaining, err := d.Process(ctx, batchSize)
		result.Batches++
		result.Processed += processed
		if err != nil {
			if !services.IsTransient(err) {
				return result, err
			}
			retries++
			if retries > d.RetryBudget {
				return result, fmt.Errorf("retry budget exhausted after %d attempts: %w", retries, err)
			}
			logger.Warn("batch failed, backing off",
				logging.Error(err),
				logging.Int("attempt", retries),
				logging.Int("budget", d.RetryBudget),
			)
			if err := sleepCtx(ctx, d.RetryDelay); err != nil {
				return result, err
			}
			continue
		}
		retries = 0
		if remaining == 0 {
			return result, nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
