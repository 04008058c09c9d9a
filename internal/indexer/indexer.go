package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"harvest/internal/config"
	"harvest/internal/embedding"
	"harvest/internal/library"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/processor"
	"harvest/internal/queue"
	"harvest/internal/services"
	"harvest/internal/textutil"
)

// DefaultBatchSize bounds one ProcessBatch call when the caller passes no
// count.
const DefaultBatchSize = 50

// Indexer drains the index queue: extract text from cataloged files, chunk,
// embed, and persist the chunks.
type Indexer struct {
	queue             *queue.Store
	catalog           *library.Store
	embedder          embedding.Embedder
	chunkCfg          processor.ChunkConfig
	host              string
	batchSize         int
	extractTimeout    time.Duration
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// New constructs an Indexer.
func New(q *queue.Store, catalog *library.Store, embedder embedding.Embedder, cfg *config.Config, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNop()
	}
	batchSize := cfg.Indexing.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	extractTimeout := 5 * time.Minute
	if cfg.Indexing.ExtractTimeoutSeconds > 0 {
		extractTimeout = time.Duration(cfg.Indexing.ExtractTimeoutSeconds) * time.Second
	}
	heartbeatInterval := 30 * time.Second
	if cfg.Workflow.HeartbeatInterval > 0 {
		heartbeatInterval = time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	}
	return &Indexer{
		queue:             q,
		catalog:           catalog,
		embedder:          embedder,
		chunkCfg:          processor.DefaultChunkConfig(),
		host:              cfg.Host(),
		batchSize:         batchSize,
		extractTimeout:    extractTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            logging.NewComponentLogger(logger, "indexer"),
	}
}

// BatchResult is the poll-until-drained contract: callers keep invoking
// ProcessBatch while Remaining is non-zero.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Remaining int `json:"remaining"`
}

// ProcessBatch claims and handles up to count index jobs. Content failures
// fail the single job and the batch continues; transient infrastructure
// failures abort the batch so the caller can back off and retry.
func (ix *Indexer) ProcessBatch(ctx context.Context, count int) (BatchResult, error) {
	var result BatchResult
	if count <= 0 {
		count = ix.batchSize
	}

	var abort error
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			abort = err
			break
		}
		job, err := ix.queue.ClaimNext(ctx, queue.KindIndex, ix.host)
		if err != nil {
			abort = err
			break
		}
		if job == nil {
			break
		}
		result.Processed++

		start := time.Now()
		if err := ix.runJob(ctx, job); err != nil {
			if services.IsTransient(err) {
				// Infrastructure outage: leave the job retryable and let
				// the caller back off, never terminal-fail it.
				result.Processed--
				if relErr := ix.queue.Release(ctx, job.ID); relErr != nil {
					ix.logger.Warn("release after transient failure",
						logging.Int64(logging.FieldJobID, job.ID),
						logging.Error(relErr),
					)
				}
				abort = err
				break
			}
			if failErr := ix.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
				abort = failErr
				break
			}
			metrics.ObserveJob(string(queue.KindIndex), false, time.Since(start))
			continue
		}
		metrics.ObserveJob(string(queue.KindIndex), true, time.Since(start))
		result.Succeeded++
	}

	stats, err := ix.queue.Stats(ctx, queue.KindIndex)
	if err != nil {
		if abort == nil {
			abort = err
		}
		return result, abort
	}
	result.Remaining = stats.Pending
	return result, abort
}

// runJob wraps processJob with a heartbeat so long extract+embed work is not
// reclaimed as stale mid-flight.
func (ix *Indexer) runJob(ctx context.Context, job *queue.Job) error {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go ix.heartbeat(heartbeatCtx, job.ID)
	return ix.processJob(ctx, job)
}

func (ix *Indexer) heartbeat(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(ix.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.queue.Heartbeat(ctx, jobID); err != nil {
				ix.logger.Warn("heartbeat failed",
					logging.Int64(logging.FieldJobID, jobID),
					logging.Error(err),
				)
			}
		}
	}
}

func (ix *Indexer) processJob(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	log := ix.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTargetRef, job.TargetRef),
	)

	fileID, err := strconv.ParseInt(job.TargetRef, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid target ref %q: %w", job.TargetRef, err)
	}
	file, err := ix.catalog.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("library file %d not found", fileID)
	}
	if file.FilePath == "" {
		return fmt.Errorf("library file %d has no local path", fileID)
	}

	jobCtx, cancel := context.WithTimeout(ctx, ix.extractTimeout)
	defer cancel()

	text, err := extractText(file.FilePath, file.MimeType)
	if err != nil {
		return err
	}
	normalized := textutil.NormalizeText(text)
	if normalized == "" {
		return errors.New("no extractable text")
	}

	contents := processor.Chunk(normalized, ix.chunkCfg)
	vectors, err := ix.embedder.EmbedBatch(jobCtx, contents)
	if err != nil {
		return err
	}

	model := job.Model
	if model == "" {
		model = ix.embedder.Model()
	}
	chunks := make([]library.Chunk, len(contents))
	for i, content := range contents {
		embeddingJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("marshal embedding %d: %w", i, err)
		}
		chunks[i] = library.Chunk{
			Content:       content,
			EmbeddingJSON: string(embeddingJSON),
			Model:         model,
		}
	}
	if err := ix.catalog.ReplaceChunks(ctx, file.ID, chunks); err != nil {
		return err
	}
	if err := ix.catalog.MarkIndexed(ctx, file.ID); err != nil {
		return err
	}

	took := time.Since(start)
	resultJSON, _ := json.Marshal(map[string]any{"chunks": len(chunks), "model": model})
	if err := ix.queue.Complete(ctx, job.ID, string(resultJSON), took); err != nil {
		return err
	}
	log.Info("indexed file",
		logging.Int("chunks", len(chunks)),
		logging.Duration("took", took),
	)
	return nil
}

// Candidates returns library files neither indexed nor already queued.
func (ix *Indexer) Candidates(ctx context.Context) ([]*library.File, error) {
	unindexed, err := ix.catalog.ListUnindexed(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []*library.File
	for _, file := range unindexed {
		active, err := ix.queue.FindActive(ctx, queue.KindIndex, strconv.FormatInt(file.ID, 10))
		if err != nil {
			return nil, err
		}
		if active == nil {
			candidates = append(candidates, file)
		}
	}
	return candidates, nil
}

// EnqueueAll queues an index job for every candidate and returns how many
// were added.
func (ix *Indexer) EnqueueAll(ctx context.Context, model string) (int, error) {
	candidates, err := ix.Candidates(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, file := range candidates {
		_, err := ix.queue.Enqueue(ctx, queue.NewJob{
			Kind:      queue.KindIndex,
			TargetRef: strconv.FormatInt(file.ID, 10),
			Model:     model,
		})
		if errors.Is(err, queue.ErrAlreadyQueued) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
