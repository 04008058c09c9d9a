package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"harvest/internal/queue"
)

// QueueStore abstracts queue persistence interactions needed by the API.
type QueueStore interface {
	Enqueue(ctx context.Context, req queue.NewJob) (*queue.Job, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	List(ctx context.Context, kind queue.Kind, statuses ...queue.Status) ([]*queue.Job, error)
	ListAll(ctx context.Context) ([]*queue.Job, error)
	Remove(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64) (*queue.Job, error)
	Stats(ctx context.Context, kind queue.Kind) (queue.Stats, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store QueueStore
}

// NewQueueService constructs a QueueService around the provided store.
func NewQueueService(store QueueStore) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// Enqueue queues one job, reporting a duplicate when the same target is
// already active for the kind.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	targetRef := strings.TrimSpace(req.TargetRef)
	if targetRef == "" {
		return EnqueueResponse{}, fmt.Errorf("target_ref is required")
	}
	kind := queue.KindIndex
	if req.Kind != "" {
		parsed, ok := queue.ParseKind(req.Kind)
		if !ok {
			return EnqueueResponse{}, fmt.Errorf("unknown kind %q", req.Kind)
		}
		kind = parsed
	}
	newJob := queue.NewJob{
		Kind:      kind,
		TargetRef: targetRef,
		Model:     strings.TrimSpace(req.Model),
	}
	if req.Priority != nil {
		newJob.Priority = *req.Priority
	}

	job, err := s.store.Enqueue(ctx, newJob)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) && job != nil {
			return EnqueueResponse{Status: "duplicate", JobID: job.ID}, nil
		}
		return EnqueueResponse{}, err
	}
	return EnqueueResponse{Status: "queued", JobID: job.ID}, nil
}

// List returns jobs filtered by optional kind and statuses, plus per-kind
// stats.
func (s *QueueService) List(ctx context.Context, kindFilter string, statusFilters []string) (QueueListResponse, error) {
	var statuses []queue.Status
	for _, value := range statusFilters {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return QueueListResponse{}, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}

	var jobs []*queue.Job
	var err error
	if kindFilter != "" {
		kind, ok := queue.ParseKind(kindFilter)
		if !ok {
			return QueueListResponse{}, fmt.Errorf("unknown kind %q", kindFilter)
		}
		jobs, err = s.store.List(ctx, kind, statuses...)
	} else if len(statuses) > 0 {
		jobs, err = s.listAllFiltered(ctx, statuses)
	} else {
		jobs, err = s.store.ListAll(ctx)
	}
	if err != nil {
		return QueueListResponse{}, err
	}

	stats, err := s.statsByKind(ctx)
	if err != nil {
		return QueueListResponse{}, err
	}
	return QueueListResponse{Jobs: FromJobs(jobs), Stats: stats}, nil
}

func (s *QueueService) listAllFiltered(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	var jobs []*queue.Job
	for _, kind := range []queue.Kind{queue.KindTranscribe, queue.KindIndex} {
		kindJobs, err := s.store.List(ctx, kind, statuses...)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, kindJobs...)
	}
	return jobs, nil
}

func (s *QueueService) statsByKind(ctx context.Context) (map[string]QueueStats, error) {
	stats := make(map[string]QueueStats, 2)
	for _, kind := range []queue.Kind{queue.KindTranscribe, queue.KindIndex} {
		kindStats, err := s.store.Stats(ctx, kind)
		if err != nil {
			return nil, err
		}
		stats[string(kind)] = FromStats(kindStats)
	}
	return stats, nil
}

// Describe fetches a single job.
func (s *QueueService) Describe(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Remove deletes a pending job.
func (s *QueueService) Remove(ctx context.Context, id int64) error {
	return s.store.Remove(ctx, id)
}

// Retry resets a failed job to pending.
func (s *QueueService) Retry(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}
