// Package watcher re-ingests a vault when its notes change.
//
// Filesystem events are debounced: a burst of saves produces one ingest once
// the vault has been quiet for Config.Debounce. Removals do not trigger an
// ingest because stored documents are never pruned.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cg-ch/cycoach/internal/indexer"
	"github.com/cg-ch/cycoach/internal/memory"
)

// DefaultDebounce is the quiet period before a re-ingest
const DefaultDebounce = 2 * time.Second

// Ingester runs one ingest pass over a vault
type Ingester interface {
	Ingest(ctx context.Context, root string) (*indexer.Statistics, error)
}

// Config contains configuration for the watcher
type Config struct {
	Debounce      time.Duration
	Extensions    []string // Default: .md
	InitialIngest bool     // Ingest once before watching
	Logger        zerolog.Logger
	OnIngest      func(stats *indexer.Statistics, err error) // Called after every ingest, may be nil
}

// Watcher watches a vault directory tree
type Watcher struct {
	root     string
	ingester Ingester
	config   Config
	fsw      *fsnotify.Watcher
}

// New creates a watcher on root and every non-hidden directory below it
func New(root string, ingester Ingester, config Config) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", indexer.ErrVaultNotFound, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", indexer.ErrVaultNotFound, root)
	}

	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".md"}
	}
	extensions := make([]string, 0, len(config.Extensions))
	for _, ext := range config.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}
	config.Extensions = extensions

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		ingester: ingester,
		config:   config,
		fsw:      fsw,
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks until ctx is cancelled, ingesting after each burst of changes.
// It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	logger := w.config.Logger
	logger.Info().Str("vault", w.root).Dur("debounce", w.config.Debounce).Msg("watching vault")

	if w.config.InitialIngest {
		w.ingest(ctx)
	}

	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("vault change")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.config.Debounce)
			pending = true

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			pending = false
			if w.ingest(ctx) {
				// Another ingest held the lock; try again after the next quiet period
				timer.Reset(w.config.Debounce)
				pending = true
			}
		}
	}
}

// ingest runs one pass and reports whether it should be retried
func (w *Watcher) ingest(ctx context.Context) bool {
	stats, err := w.ingester.Ingest(ctx, w.root)
	if w.config.OnIngest != nil {
		w.config.OnIngest(stats, err)
	}

	logger := w.config.Logger
	switch {
	case errors.Is(err, memory.ErrIngestInProgress):
		logger.Debug().Msg("ingest already running, rescheduling")
		return true
	case err != nil:
		logger.Warn().Err(err).Msg("ingest failed")
	default:
		logger.Info().
			Int("changed", stats.Changed).
			Int("failed", stats.Failed).
			Bool("rebuilt", stats.IndexRebuilt).
			Dur("elapsed", stats.Duration).
			Msg("vault re-ingested")
	}
	return false
}

// handleEvent reports whether event should schedule an ingest.
// New directories are added to the watch list.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if w.hidden(event.Name) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.config.Logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
			// Files written before the watch was added are only found by an ingest
			return true
		}
	}

	// Chmod covers touch, which only changes the modification time
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Chmod) {
		return false
	}

	return w.matchesExtension(event.Name)
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.config.Logger.Warn().Err(err).Str("path", path).Msg("cannot read directory")
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// hidden reports whether any component of path below the root starts with a dot
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

func (w *Watcher) matchesExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range w.config.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}
