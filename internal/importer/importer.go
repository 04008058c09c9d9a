package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"harvest/internal/library"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
	"harvest/internal/textutil"
)

// Importer reconciles ready packages into the library catalog and catalogs
// local files for indexing.
type Importer struct {
	store   *stagestore.Store
	catalog *library.Store
	queue   *queue.Store
	logger  *slog.Logger
}

// New constructs an Importer.
func New(store *stagestore.Store, catalog *library.Store, q *queue.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{
		store:   store,
		catalog: catalog,
		queue:   q,
		logger:  logging.NewComponentLogger(logger, "importer"),
	}
}

// Result aggregates one import run's outcomes.
type Result struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// ImportAll reconciles every package in ready/ into the catalog. Already
// fingerprinted content counts as a duplicate and still moves to imported/,
// which makes re-running after a crash idempotent: the catalog write always
// commits before the move, so a crash between the two yields one duplicate
// on the rerun, never a second catalog row and never a lost package.
func (i *Importer) ImportAll(ctx context.Context) (Result, error) {
	var result Result
	entries, err := i.store.ListNew(i.store.ReadyDir())
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		log := i.logger.With(logging.String("package", entry.Name))

		pkg, err := i.store.ReadReadyPackage(entry.Path)
		if err == nil {
			err = validatePackage(pkg)
		}
		if err != nil {
			// Malformed packages stay in ready/ for diagnosis.
			log.Warn("skipping malformed package", logging.Error(err))
			result.Errors++
			metrics.ImportOutcomes.WithLabelValues("error").Inc()
			continue
		}

		existing, err := i.catalog.FindByFingerprint(ctx, pkg.Fingerprint)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Duplicates++
			metrics.ImportOutcomes.WithLabelValues("duplicate").Inc()
			log.Info("duplicate package",
				logging.String("fingerprint", pkg.Fingerprint),
				logging.Int64("file_id", existing.ID),
			)
		} else {
			if err := i.insertPackage(ctx, pkg); err != nil {
				return result, err
			}
			result.Created++
			metrics.ImportOutcomes.WithLabelValues("created").Inc()
			log.Info("imported package", logging.String("fingerprint", pkg.Fingerprint))
		}

		if _, err := i.store.Move(entry.Path, i.store.ImportedDir()); err != nil {
			// The catalog row exists; the next run will see a duplicate and
			// retry the move.
			log.Warn("package move failed", logging.Error(err))
		}
	}
	return result, nil
}

func validatePackage(pkg *stagestore.ReadyPackage) error {
	if pkg.Fingerprint == "" {
		return fmt.Errorf("package has no fingerprint")
	}
	if pkg.Filename == "" {
		return fmt.Errorf("package has no filename")
	}
	if len(pkg.Chunks) == 0 {
		return fmt.Errorf("package has no chunks")
	}
	return nil
}

func (i *Importer) insertPackage(ctx context.Context, pkg *stagestore.ReadyPackage) error {
	metadata, err := json.Marshal(map[string]any{
		"package_id":      pkg.PackageID,
		"source_name":     pkg.SourceName,
		"teacher":         pkg.Teacher,
		"content_type":    pkg.ContentType,
		"url":             pkg.URL,
		"collection":      pkg.Collection,
		"topics":          pkg.Topics,
		"series":          pkg.Series,
		"embedding_model": pkg.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("marshal package metadata: %w", err)
	}

	// Packages arrive with embeddings, so the file is indexed on arrival.
	file, err := i.catalog.CreateFile(ctx, &library.File{
		Filename:     pkg.Filename,
		MimeType:     "text/plain",
		SourceType:   library.SourceHarvest,
		Fingerprint:  pkg.Fingerprint,
		MetadataJSON: string(metadata),
		Indexed:      true,
	})
	if err != nil {
		return err
	}

	chunks := make([]library.Chunk, len(pkg.Chunks))
	for idx, chunk := range pkg.Chunks {
		embedding, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding %d: %w", idx, err)
		}
		chunks[idx] = library.Chunk{
			Content:       chunk.Content,
			EmbeddingJSON: string(embedding),
			Model:         pkg.EmbeddingModel,
		}
	}
	return i.catalog.ReplaceChunks(ctx, file.ID, chunks)
}

// Ingest catalogs a local file or directory tree, deduplicating by content
// fingerprint, and optionally enqueues index jobs for new entries.
func (i *Importer) Ingest(ctx context.Context, path string, autoIndex bool) (Result, error) {
	var result Result

	info, err := os.Stat(path)
	if err != nil {
		return result, fmt.Errorf("stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("walk %s: %w", path, err)
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := i.ingestFile(ctx, file, autoIndex, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (i *Importer) ingestFile(ctx context.Context, path string, autoIndex bool, result *Result) error {
	log := i.logger.With(logging.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("unreadable file", logging.Error(err))
		result.Errors++
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	filename := filepath.Base(path)
	fingerprint := textutil.Fingerprint(filename, string(data))

	existing, err := i.catalog.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		result.Duplicates++
		return nil
	}

	file, err := i.catalog.CreateFile(ctx, &library.File{
		Filename:    filename,
		FilePath:    abs,
		MimeType:    mimeTypeFor(filename),
		SourceType:  library.SourceIngest,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return err
	}
	result.Created++
	log.Info("cataloged file", logging.Int64("file_id", file.ID))

	if autoIndex && i.queue != nil {
		_, err := i.queue.Enqueue(ctx, queue.NewJob{
			Kind:      queue.KindIndex,
			TargetRef: strconv.FormatInt(file.ID, 10),
		})
		if err != nil && !errors.Is(err, queue.ErrAlreadyQueued) {
			return err
		}
	}
	return nil
}

func mimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
