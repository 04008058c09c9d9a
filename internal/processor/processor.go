package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"harvest/internal/config"
	"harvest/internal/embedding"
	"harvest/internal/logging"
	"harvest/internal/services"
	"harvest/internal/stagestore"
	"harvest/internal/textutil"
)

// Processor turns raw records into ready packages: normalize, chunk, embed,
// write to ready/, then move the consumed record to processed/.
type Processor struct {
	store    *stagestore.Store
	embedder embedding.Embedder
	chunkCfg ChunkConfig
	logger   *slog.Logger
}

// New constructs a Processor. The embedder is injected so tests can supply a
// stub backend.
func New(store *stagestore.Store, embedder embedding.Embedder, cfg config.Processing, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		store:    store,
		embedder: embedder,
		chunkCfg: chunkConfigFrom(cfg),
		logger:   logging.NewComponentLogger(logger, "processor"),
	}
}

// SweepResult aggregates one sweep's per-item outcomes.
type SweepResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (r *SweepResult) add(other SweepResult) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

// Sweep processes every raw record across all sources. Item-level failures
// are isolated to errors/{source} and counted; only transient infrastructure
// errors abort the sweep.
func (p *Processor) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	sources, err := p.store.Sources()
	if err != nil {
		return result, err
	}
	for _, source := range sources {
		sourceResult, err := p.SweepSource(ctx, source)
		result.add(sourceResult)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// SweepSource processes the raw records of a single source.
func (p *Processor) SweepSource(ctx context.Context, source string) (SweepResult, error) {
	var result SweepResult
	entries, err := p.store.ListNew(p.store.RawDir(source))
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := p.processEntry(ctx, source, entry)
		switch outcome {
		case outcomeProcessed:
			result.Processed++
		case outcomeSkipped:
			result.Skipped++
		case outcomeError:
			result.Errors++
		case outcomeAbort:
			return result, err
		}
	}
	return result, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeError
	outcomeAbort
)

func (p *Processor) processEntry(ctx context.Context, source string, entry stagestore.Entry) (outcome, error) {
	log := p.logger.With(
		logging.String(logging.FieldSource, source),
		logging.String("filename", entry.Name),
	)

	record, err := p.store.ReadRawRecord(entry.Path)
	if err != nil {
		p.isolate(log, source, entry, fmt.Errorf("malformed record: %w", err))
		return outcomeError, nil
	}

	if record.IsAudio() && record.Transcript == "" {
		// Left in raw/ for the transcription worker.
		log.Debug("awaiting transcript", logging.String("content_type", record.ContentType))
		return outcomeSkipped, nil
	}

	normalized := textutil.NormalizeText(record.Body())
	if normalized == "" {
		p.isolate(log, source, entry, fmt.Errorf("record has no text"))
		return outcomeError, nil
	}

	chunks := Chunk(normalized, p.chunkCfg)
	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		if services.IsTransient(err) {
			return outcomeAbort, fmt.Errorf("embed %s/%s: %w", source, entry.Name, err)
		}
		p.isolate(log, source, entry, fmt.Errorf("embed: %w", err))
		return outcomeError, nil
	}

	pkg := p.buildPackage(record, normalized, chunks, vectors)
	readyPath := p.store.ReadyDir() + "/" + packageFileName(source, entry.Name)
	if err := p.store.WriteJSON(readyPath, pkg); err != nil {
		return outcomeAbort, fmt.Errorf("write package for %s/%s: %w", source, entry.Name, err)
	}
	if _, err := p.store.Move(entry.Path, p.store.ProcessedDir()); err != nil {
		return outcomeAbort, fmt.Errorf("retire record %s/%s: %w", source, entry.Name, err)
	}

	log.Info("processed record",
		logging.Int("chunks", len(pkg.Chunks)),
		logging.String("fingerprint", pkg.Fingerprint),
	)
	return outcomeProcessed, nil
}

func (p *Processor) buildPackage(record *stagestore.RawRecord, normalized string, chunks []string, vectors [][]float32) *stagestore.ReadyPackage {
	pkg := &stagestore.ReadyPackage{
		PackageID:      uuid.NewString(),
		Fingerprint:    textutil.Fingerprint(record.Filename, normalized),
		Filename:       record.Filename,
		SourceName:     record.SourceName,
		Teacher:        record.Teacher,
		ContentType:    record.ContentType,
		URL:            record.URL,
		Collection:     record.Collection,
		Topics:         record.Topics,
		Series:         record.Series,
		Metadata:       record.Metadata,
		EmbeddingModel: p.embedder.Model(),
		CreatedAt:      time.Now().UTC(),
		Chunks:         make([]stagestore.PackageChunk, len(chunks)),
	}
	for i, content := range chunks {
		pkg.Chunks[i] = stagestore.PackageChunk{
			Index:     i,
			Content:   content,
			Embedding: vectors[i],
		}
	}
	return pkg
}

// isolate moves a bad record to errors/{source} so one malformed file never
// halts the rest of the batch. The record is preserved for diagnosis.
func (p *Processor) isolate(log *slog.Logger, source string, entry stagestore.Entry, cause error) {
	log.Warn("isolating record", logging.Error(cause))
	if _, err := p.store.Move(entry.Path, p.store.ErrorDir(source)); err != nil {
		log.Error("isolate move failed", logging.Error(err))
	}
}

func packageFileName(source, rawName string) string {
	base := strings.TrimSuffix(rawName, ".json")
	return textutil.SanitizeFileName(source+"-"+base) + ".json"
}
