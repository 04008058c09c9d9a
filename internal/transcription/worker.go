package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
)

// MediaPathKey is the raw-record metadata key holding the downloaded audio
// file, relative to the store root.
const MediaPathKey = "media_path"

// Worker drains the transcribe queue: claim, run whisper, write the
// transcript into a replacement raw record, record the outcome.
type Worker struct {
	queue             *queue.Store
	store             *stagestore.Store
	service           *Service
	host              string
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewWorker constructs a transcription worker.
func NewWorker(q *queue.Store, store *stagestore.Store, service *Service, cfg *config.Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := 30 * time.Second
	if cfg.Workflow.HeartbeatInterval > 0 {
		interval = time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	}
	return &Worker{
		queue:             q,
		store:             store,
		service:           service,
		host:              cfg.Host(),
		heartbeatInterval: interval,
		logger:            logging.NewComponentLogger(logger, "transcription"),
	}
}

// ProcessNext claims and handles one transcribe job. Returns false when the
// queue holds no pending work. Job-level failures are recorded on the job
// and do not propagate.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNext(ctx, queue.KindTranscribe, w.host)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTargetRef, job.TargetRef),
	)
	start := time.Now()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, job.ID)

	transcript, err := w.transcribeTarget(ctx, job)
	if err != nil {
		log.Warn("transcription failed", logging.Error(err))
		if failErr := w.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			return true, failErr
		}
		metrics.ObserveJob(string(queue.KindTranscribe), false, time.Since(start))
		return true, nil
	}

	result, _ := json.Marshal(map[string]any{"transcript_chars": len(transcript)})
	if err := w.queue.Complete(ctx, job.ID, string(result), time.Since(start)); err != nil {
		return true, err
	}
	metrics.ObserveJob(string(queue.KindTranscribe), true, time.Since(start))
	log.Info("transcribed",
		logging.Int("transcript_chars", len(transcript)),
		logging.Duration("took", time.Since(start)),
	)
	return true, nil
}

func (w *Worker) transcribeTarget(ctx context.Context, job *queue.Job) (string, error) {
	recordPath := filepath.Join(w.store.Root(), filepath.FromSlash(job.TargetRef))
	record, err := w.store.ReadRawRecord(recordPath)
	if err != nil {
		return "", fmt.Errorf("load raw record: %w", err)
	}

	mediaPath := record.Metadata[MediaPathKey]
	if mediaPath == "" {
		return "", fmt.Errorf("record has no %s metadata", MediaPathKey)
	}
	if !filepath.IsAbs(mediaPath) {
		mediaPath = filepath.Join(w.store.Root(), filepath.FromSlash(mediaPath))
	}

	transcript, err := w.service.Transcribe(ctx, mediaPath)
	if err != nil {
		return "", err
	}

	// Replacement write keeps the record immutable from readers' view: the
	// rename swaps the whole file at once.
	record.Transcript = transcript
	if err := w.store.WriteJSON(recordPath, record); err != nil {
		return "", fmt.Errorf("write transcript record: %w", err)
	}
	return transcript, nil
}

func (w *Worker) heartbeat(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("heartbeat failed",
					logging.Int64(logging.FieldJobID, jobID),
					logging.Error(err),
				)
			}
		}
	}
}
