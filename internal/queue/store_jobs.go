package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewJob describes a job to be enqueued.
type NewJob struct {
	Kind       Kind
	TargetRef  string
	Priority   int
	Model      string
	ParamsJSON string
}

// Enqueue inserts a pending job unless an active job already references the
// same target. Returns ErrAlreadyQueued when a pending or processing job for
// the same kind and target exists.
func (s *Store) Enqueue(ctx context.Context, req NewJob) (*Job, error) {
	if req.TargetRef == "" {
		return nil, errors.New("target ref is empty")
	}
	if _, ok := ParseKind(string(req.Kind)); !ok {
		return nil, fmt.Errorf("unknown job kind %q", req.Kind)
	}
	if req.Priority <= 0 {
		req.Priority = DefaultPriority
	}

	existing, err := s.FindActive(ctx, req.Kind, req.TargetRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrAlreadyQueued
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            kind, target_ref, status, priority, model, params_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(req.Kind),
		req.TargetRef,
		StatusPending,
		req.Priority,
		nullableString(req.Model),
		nullableString(req.ParamsJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		// The partial unique index closes the race between FindActive and
		// the insert when two producers enqueue the same target.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if existing, findErr := s.FindActive(ctx, req.Kind, req.TargetRef); findErr == nil && existing != nil {
				return existing, ErrAlreadyQueued
			}
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when no job matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActive returns the pending or processing job for a kind and target, if any.
func (s *Store) FindActive(ctx context.Context, kind Kind, targetRef string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE kind = ? AND target_ref = ? AND status IN (?, ?)
         ORDER BY id LIMIT 1`,
		string(kind),
		targetRef,
		StatusPending,
		StatusProcessing,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

// List returns jobs for a kind filtered by the given statuses, oldest first.
// An empty status list returns every job for the kind.
func (s *Store) List(ctx context.Context, kind Kind, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE kind = ?`
	args := []any{string(kind)}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY priority ASC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListAll returns every job across kinds, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a pending job. Processing jobs cannot be removed; completed
// and failed jobs are kept for history.
func (s *Store) Remove(ctx context.Context, id int64) error {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.Status != StatusPending {
		return fmt.Errorf("%w: cannot remove %s job", ErrInvalidTransition, job.Status)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ? AND status = ?`, id, StatusPending)
	if err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCompleted deletes completed jobs for a kind and returns the count removed.
func (s *Store) ClearCompleted(ctx context.Context, kind Kind) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE kind = ? AND status = ?`,
		string(kind),
		StatusCompleted,
	)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts per status for a kind.
func (s *Store) Stats(ctx context.Context, kind Kind) (Stats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM jobs WHERE kind = ? GROUP BY status`,
		string(kind),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}
