package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Kind partitions the queue into independent work streams.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindIndex      Kind = "index"
)

// DefaultPriority is assigned when an enqueue request leaves priority unset.
// Lower values are claimed first.
const DefaultPriority = 10

// ReclaimedReason is the error message set on jobs reclaimed after their
// worker stopped heartbeating.
const ReclaimedReason = "reclaimed: worker heartbeat expired"

// ShutdownReason is the error message set on in-flight jobs failed during
// daemon shutdown.
const ShutdownReason = "daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Job represents a queue row persisted in SQLite.
type Job struct {
	ID            int64
	Kind          Kind
	TargetRef     string
	Status        Status
	Priority      int
	Model         string
	ParamsJSON    string
	AttemptCount  int
	ErrorMessage  string
	ResultJSON    string
	ProcessingMS  int64
	LeaseHost     string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Stats aggregates job counts per lifecycle state.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the sum across all states.
func (s Stats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindTranscribe:
		return KindTranscribe, true
	case KindIndex:
		return KindIndex, true
	default:
		return "", false
	}
}

// IsTerminal reports whether a status admits no further transitions except
// explicit retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcessingDuration returns the recorded processing time.
func (j *Job) ProcessingDuration() time.Duration {
	return time.Duration(j.ProcessingMS) * time.Millisecond
}
