package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/searcher"
	"github.com/cg-ch/cycoach/internal/storage"
)

// app is the wired memory engine shared by every command
type app struct {
	store    *storage.SQLiteStorage
	embedder embedder.Embedder
	engine   *memory.Engine
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// openApp opens the store, builds the embedder and loads the corpus snapshot
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := opts.cfg

	if dir := filepath.Dir(cfg.DBPath); dir != "" && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	engine, err := memory.NewEngine(ctx, store, emb, memory.Options{
		Params:       cfg.LexicalParams(),
		Logger:       opts.logger,
		StoreTimeout: cfg.Ingest.StoreTimeout,
	})
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	opts.logger.Debug().
		Str("db", cfg.DBPath).
		Str("provider", emb.Provider()).
		Str("model", emb.Model()).
		Int("documents", engine.Snapshot().Len()).
		Msg("memory engine ready")

	return &app{
		store:    store,
		embedder: emb,
		engine:   engine,
		indexer:  indexer.New(engine, cfg.IndexerConfig()),
		searcher: searcher.New(engine, cfg.SearcherConfig()),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.embedder.Close(), a.store.Close())
}
