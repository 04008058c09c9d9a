package api

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID               int64  `json:"id"`
	Kind             string `json:"kind"`
	TargetRef        string `json:"targetRef"`
	Status           string `json:"status"`
	Priority         int    `json:"priority"`
	Model            string `json:"model,omitempty"`
	AttemptCount     int    `json:"attemptCount"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	ResultJSON       string `json:"result,omitempty"`
	ProcessingTimeMS int64  `json:"processingTimeMs,omitempty"`
	LeaseHost        string `json:"leaseHost,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// QueueStats mirrors per-kind queue counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// EnqueueRequest asks the daemon to queue one job.
type EnqueueRequest struct {
	TargetRef string `json:"target_ref"`
	Kind      string `json:"kind,omitempty"`
	Model     string `json:"model,omitempty"`
	Priority  *int   `json:"priority,omitempty"`
}

// EnqueueResponse reports the enqueue outcome. Status is "queued" or
// "duplicate"; JobID identifies the created or already-active job.
type EnqueueResponse struct {
	Status string `json:"status"`
	JobID  int64  `json:"job_id"`
}

// EnqueueAllRequest queues index jobs for every candidate file.
type EnqueueAllRequest struct {
	Model string `json:"model,omitempty"`
}

// EnqueueAllResponse reports how many jobs were added.
type EnqueueAllResponse struct {
	Added int `json:"added"`
}

// QueueListResponse wraps a job listing plus per-kind stats.
type QueueListResponse struct {
	Jobs  []Job                 `json:"jobs"`
	Stats map[string]QueueStats `json:"stats"`
}

// ProcessRequest runs an index batch immediately.
type ProcessRequest struct {
	Count int `json:"count,omitempty"`
}

// ProcessResponse mirrors the index batch result.
type ProcessResponse struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Remaining int `json:"remaining"`
}

// Candidate is a cataloged file eligible for indexing.
type Candidate struct {
	FileID   int64  `json:"fileId"`
	Filename string `json:"filename"`
	FilePath string `json:"filePath,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CandidatesResponse wraps the candidate listing.
type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// IngestRequest catalogs a local file or directory.
type IngestRequest struct {
	Path      string `json:"path"`
	AutoIndex bool   `json:"auto_index"`
}

// ImportResponse mirrors importer outcomes for both import-all and ingest.
type ImportResponse struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// StageDepths reports files waiting in each pipeline stage.
type StageDepths struct {
	Raw       map[string]int `json:"raw"`
	Processed int            `json:"processed"`
	Ready     int            `json:"ready"`
	Imported  int            `json:"imported"`
	Errors    map[string]int `json:"errors"`
}

// LibraryCounts reports catalog totals.
type LibraryCounts struct {
	Files   int `json:"files"`
	Indexed int `json:"indexed"`
	Chunks  int `json:"chunks"`
}

// RuntimeStats captures machine-level health for the cluster view.
type RuntimeStats struct {
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Load1         float64 `json:"load1"`
	MemTotalBytes uint64  `json:"memTotalBytes"`
	MemFreeBytes  uint64  `json:"memFreeBytes"`
	DiskTotal     uint64  `json:"diskTotalBytes"`
	DiskFree      uint64  `json:"diskFreeBytes"`
}

// WorkflowStatus summarizes lane execution state.
type WorkflowStatus struct {
	Running    bool                  `json:"running"`
	LastError  string                `json:"lastError,omitempty"`
	QueueStats map[string]QueueStats `json:"queueStats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Host         string         `json:"host"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Stages       *StageDepths   `json:"stages,omitempty"`
	Library      *LibraryCounts `json:"library,omitempty"`
	Runtime      *RuntimeStats  `json:"runtime,omitempty"`
}

// RemoveResponse acknowledges a queue removal.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// RetryResponse acknowledges a failed-job retry.
type RetryResponse struct {
	Retried bool `json:"retried"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Event is a websocket job lifecycle notification.
type Event struct {
	Type      string `json:"type"`
	Kind      string `json:"kind,omitempty"`
	JobID     int64  `json:"jobId,omitempty"`
	TargetRef string `json:"targetRef,omitempty"`
	Status    string `json:"status,omitempty"`
	Detail    string `json:"detail,omitempty"`
	At        string `json:"at"`
}
