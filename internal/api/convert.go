package api

import (
	"time"

	"harvest/internal/library"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
)

const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FromJob converts a queue row into its transport form.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:               job.ID,
		Kind:             string(job.Kind),
		TargetRef:        job.TargetRef,
		Status:           string(job.Status),
		Priority:         job.Priority,
		Model:            job.Model,
		AttemptCount:     job.AttemptCount,
		ErrorMessage:     job.ErrorMessage,
		ResultJSON:       job.ResultJSON,
		ProcessingTimeMS: job.ProcessingMS,
		LeaseHost:        job.LeaseHost,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a job slice, never returning nil.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStats converts queue counts.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
	}
}

// FromCandidate converts a catalog file into its candidate view.
func FromCandidate(file *library.File) Candidate {
	if file == nil {
		return Candidate{}
	}
	return Candidate{
		FileID:   file.ID,
		Filename: file.Filename,
		FilePath: file.FilePath,
		MimeType: file.MimeType,
	}
}

// FromDepths converts store stage counts.
func FromDepths(depths stagestore.Depths) StageDepths {
	return StageDepths{
		Raw:       depths.Raw,
		Processed: depths.Processed,
		Ready:     depths.Ready,
		Imported:  depths.Imported,
		Errors:    depths.Errors,
	}
}

// FromCounts converts catalog totals.
func FromCounts(counts library.Counts) LibraryCounts {
	return LibraryCounts{
		Files:   counts.Files,
		Indexed: counts.Indexed,
		Chunks:  counts.Chunks,
	}
}

// NewEvent stamps a job lifecycle event.
func NewEvent(eventType string, job *queue.Job, detail string) Event {
	evt := Event{
		Type:   eventType,
		Detail: detail,
		At:     time.Now().UTC().Format(dateTimeFormat),
	}
	if job != nil {
		evt.Kind = string(job.Kind)
		evt.JobID = job.ID
		evt.TargetRef = job.TargetRef
		evt.Status = string(job.Status)
	}
	return evt
}
