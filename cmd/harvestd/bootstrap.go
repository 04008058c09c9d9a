package main

import (
	"fmt"
	"log/slog"

	"harvest/internal/config"
	"harvest/internal/daemon"
	"harvest/internal/embedding"
	"harvest/internal/importer"
	"harvest/internal/indexer"
	"harvest/internal/library"
	"harvest/internal/processor"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
	"harvest/internal/transcription"
	"harvest/internal/workflow"
)

// buildDaemon assembles the full pipeline: queue and catalog stores, the
// shared stage store, and one worker of each kind wired into the workflow
// manager.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	catalog, err := library.Open(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open library: %w", err)
	}

	stages := stagestore.New(cfg)
	if err := stages.EnsureLayout(); err != nil {
		logger.Warn("stage store layout", slog.Any("error", err))
	}

	embedder := embedding.NewOllamaClient(cfg.Embedding)

	comps := workflow.Components{
		Transcriber: transcription.NewWorker(store, stages, transcription.NewService(cfg.Transcription), cfg, logger),
		Processor:   processor.New(stages, embedder, cfg.Processing, logger),
		Importer:    importer.New(stages, catalog, store, logger),
		Indexer:     indexer.New(store, catalog, embedder, cfg, logger),
	}
	mgr := workflow.NewManager(cfg, store, comps, logger)

	d, err := daemon.New(cfg, daemon.Components{
		Store:    store,
		Catalog:  catalog,
		Stages:   stages,
		Workflow: mgr,
		Importer: comps.Importer,
		Indexer:  comps.Indexer,
	}, logger)
	if err != nil {
		catalog.Close()
		store.Close()
		return nil, err
	}
	return d, nil
}
