package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const claimAttempts = 3

// ClaimNext atomically moves the highest-priority pending job of a kind to
// processing and returns it. Returns nil when no pending work exists. Two
// workers claiming concurrently never receive the same job: the conditional
// update only succeeds for whichever worker transitions the row first.
func (s *Store) ClaimNext(ctx context.Context, kind Kind, leaseHost string) (*Job, error) {
	ctx = ensureContext(ctx)
	for attempt := 0; attempt < claimAttempts; attempt++ {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs WHERE kind = ? AND status = ?
             ORDER BY priority ASC, created_at ASC, id ASC LIMIT 1`,
			string(kind),
			StatusPending,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select claim candidate: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET status = ?, lease_host = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			nullableString(leaseHost),
			now,
			now,
			id,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker, pick a fresh candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
	return nil, nil
}

// Complete marks a processing job as completed, recording result metadata and
// how long it took.
func (s *Store) Complete(ctx context.Context, id int64, resultJSON string, took time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = NULL, result_json = ?, processing_time_ms = ?,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(resultJSON),
		took.Milliseconds(),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing)
}

// Fail marks a processing job as failed with the given message and increments
// its attempt counter.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, attempt_count = attempt_count + 1,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing)
}

// Release returns a processing job to pending without recording a failure.
// Workers call it when an infrastructure outage interrupts a claim: the job
// stays eligible for the next claim and its attempt counter is untouched.
func (s *Store) Release(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing)
}

// Retry returns a failed job to pending. The attempt counter is preserved so
// repeated failures stay visible; the error message is cleared.
func (s *Store) Retry(ctx context.Context, id int64) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = NULL,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		now,
		id,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}
	if err := s.requireTransition(ctx, res, id, StatusFailed); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// RetryAllFailed returns every failed job of a kind to pending.
func (s *Store) RetryAllFailed(ctx context.Context, kind Kind) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = NULL,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE kind = ? AND status = ?`,
		StatusPending,
		now,
		string(kind),
		StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// Heartbeat refreshes the lease timestamp for an in-flight job.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails processing jobs whose heartbeat predates the cutoff.
// Reclaimed jobs stay failed until an operator retries them; silently
// re-running work that may have partially executed is worse than surfacing it.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, attempt_count = attempt_count + 1,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusFailed,
		ReclaimedReason,
		now,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInFlight fails every processing job, used during daemon shutdown so
// leases do not outlive the workers holding them.
func (s *Store) FailInFlight(ctx context.Context, reason string) (int64, error) {
	if reason == "" {
		reason = ShutdownReason
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?,
             lease_host = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		reason,
		now,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) requireTransition(ctx context.Context, res interface{ RowsAffected() (int64, error) }, id int64, from Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: job %d is %s, expected %s", ErrInvalidTransition, id, job.Status, from)
}
