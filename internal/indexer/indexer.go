package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/metrics"
	"github.com/cg-ch/cycoach/internal/storage"
)

var (
	// ErrIO wraps failures to stat or read a vault file
	ErrIO = errors.New("file i/o failed")
	// ErrEmbedding wraps failures to embed a vault file
	ErrEmbedding = errors.New("embedding failed")
	// ErrVaultNotFound is returned when the vault root is missing or not a directory
	ErrVaultNotFound = errors.New("vault not found")
)

// Change detection modes
const (
	ChangeDetectionMtime = "mtime"
	ChangeDetectionHash  = "hash"
)

// Defaults
const (
	DefaultEmbedTimeout   = 60 * time.Second
	DefaultStoreTimeout   = 10 * time.Second
	DefaultRefreshTimeout = 60 * time.Second
)

// Indexer ingests a vault of markdown notes into the memory engine
type Indexer struct {
	engine *memory.Engine
	config Config
}

// Config contains configuration for the indexer
type Config struct {
	Extensions      []string      // File extensions to ingest, case-insensitive (default: .md)
	ChangeDetection string        // mtime (default) or hash
	Workers         int           // Files processed concurrently (default: min(4, NumCPU))
	EmbedTimeout    time.Duration // Bound on embedding one file
	StoreTimeout    time.Duration // Bound on one store read or write
	RefreshTimeout  time.Duration // Bound on the snapshot rebuild after a run
}

// DefaultConfig returns the default ingest configuration
func DefaultConfig() Config {
	return Config{
		Extensions:      []string{".md"},
		ChangeDetection: ChangeDetectionMtime,
		Workers:         min(4, runtime.NumCPU()),
		EmbedTimeout:    DefaultEmbedTimeout,
		StoreTimeout:    DefaultStoreTimeout,
		RefreshTimeout:  DefaultRefreshTimeout,
	}
}

// Statistics contains statistics about one ingest run
type Statistics struct {
	Scanned       int  // Candidate files examined
	Changed       int  // Files embedded and upserted
	Skipped       int  // Files whose stored modification time matched
	Empty         int  // Files with no non-whitespace content
	Touched       int  // Hash mode: mtime changed, content identical
	Failed        int  // Files left unchanged because of an error
	Interrupted   bool // The run stopped early on cancellation
	IndexRebuilt  bool
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer; zero config fields take their defaults
func New(engine *memory.Engine, config Config) *Indexer {
	defaults := DefaultConfig()
	if len(config.Extensions) == 0 {
		config.Extensions = defaults.Extensions
	}
	extensions := make([]string, 0, len(config.Extensions))
	for _, ext := range config.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}
	config.Extensions = extensions
	if config.ChangeDetection == "" {
		config.ChangeDetection = defaults.ChangeDetection
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = defaults.EmbedTimeout
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = engine.StoreTimeout()
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = defaults.RefreshTimeout
	}

	return &Indexer{
		engine: engine,
		config: config,
	}
}

// outcome of ingesting one file
type outcome int

const (
	outcomeChanged outcome = iota
	outcomeSkipped
	outcomeEmpty
	outcomeTouched
	outcomeFailed
	outcomeInterrupted
)

// Ingest brings the store in line with the vault at root and rebuilds the
// corpus snapshot if anything changed. Per-file failures are logged and
// counted; only batch-level problems (lock busy, missing vault) return an error.
func (idx *Indexer) Ingest(ctx context.Context, root string) (*Statistics, error) {
	if !idx.engine.TryBeginIngest() {
		return nil, memory.ErrIngestInProgress
	}
	defer idx.engine.EndIngest()

	ctx, span := metrics.StartSpan(ctx, "indexer.Ingest", attribute.String("cycoach.vault", root))
	defer span.End()

	logger := idx.engine.Logger()
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, root)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrVaultNotFound, root)
	}

	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}
	counts := &tally{stats: stats}

	files, err := idx.discoverFiles(root, counts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	idx.ingestFiles(ctx, root, files, counts)

	if stats.Changed > 0 || stats.Touched > 0 {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idx.config.RefreshTimeout)
		_, err := idx.engine.Refresh(refreshCtx)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("corpus snapshot rebuild failed")
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("rebuild: %v", err))
		} else {
			stats.IndexRebuilt = true
		}
	}

	stats.Duration = time.Since(startTime)
	metrics.IngestDuration.Observe(stats.Duration.Seconds())
	metrics.AddEvent(ctx, "ingest.done",
		attribute.Int("cycoach.changed", stats.Changed),
		attribute.Int("cycoach.failed", stats.Failed),
		attribute.Bool("cycoach.interrupted", stats.Interrupted))

	logger.Info().
		Str("vault", root).
		Int("scanned", stats.Scanned).
		Int("changed", stats.Changed).
		Int("skipped", stats.Skipped).
		Int("empty", stats.Empty).
		Int("touched", stats.Touched).
		Int("failed", stats.Failed).
		Bool("interrupted", stats.Interrupted).
		Bool("rebuilt", stats.IndexRebuilt).
		Dur("duration", stats.Duration).
		Msg("ingest finished")

	return stats, nil
}

// discoverFiles lists candidate files under root in lexical order.
// Hidden files and directories are skipped; unreadable directories count as failures.
func (idx *Indexer) discoverFiles(root string, counts *tally) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			counts.fail(idx.engine.Logger(), path, fmt.Errorf("%w: %w", ErrIO, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !idx.matchesExtension(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

func (idx *Indexer) matchesExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range idx.config.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// ingestFiles runs files through a bounded worker pool. Cancellation stops
// new files from starting; files already in flight finish. Outcomes are
// tallied in file order once the pool drains.
func (idx *Indexer) ingestFiles(ctx context.Context, root string, files []string, counts *tally) {
	var g errgroup.Group
	g.SetLimit(idx.config.Workers)

	results := make([]*fileResult, len(files))
	for i, path := range files {
		if ctx.Err() != nil {
			counts.interrupt()
			break
		}

		g.Go(func() error {
			res := idx.ingestFile(ctx, root, path)
			results[i] = &res
			return nil
		})
	}

	_ = g.Wait()

	logger := idx.engine.Logger()
	for i, res := range results {
		if res != nil {
			counts.record(logger, files[i], *res)
		}
	}

	if ctx.Err() != nil {
		counts.interrupt()
	}
}

// fileResult carries the outcome of one file and the error behind a failure
type fileResult struct {
	outcome outcome
	err     error
}

// ingestFile brings the stored record for one file up to date
func (idx *Indexer) ingestFile(ctx context.Context, root, path string) fileResult {
	store := idx.engine.Store()

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return fileResult{outcomeFailed, fmt.Errorf("%w: %w", ErrIO, err)}
	}
	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(path)
	if err != nil {
		return fileResult{outcomeFailed, fmt.Errorf("%w: %w", ErrIO, err)}
	}
	modifiedAt := float64(info.ModTime().UnixNano()) / 1e9

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idx.config.StoreTimeout)
	existing, err := store.GetDocument(lookupCtx, relPath)
	cancel()
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fileResult{outcomeFailed, err}
	}

	if existing != nil && existing.ModifiedAt == modifiedAt {
		return fileResult{outcome: outcomeSkipped}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fileResult{outcomeFailed, fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if !utf8.Valid(raw) {
		return fileResult{outcomeFailed, fmt.Errorf("%w: %s is not valid UTF-8", ErrIO, relPath)}
	}
	content := string(raw)

	if strings.TrimSpace(content) == "" {
		return fileResult{outcome: outcomeEmpty}
	}

	if idx.config.ChangeDetection == ChangeDetectionHash && existing != nil && existing.Content == content {
		touched := &storage.Document{
			Path:       relPath,
			Content:    content,
			ModifiedAt: modifiedAt,
			Vector:     existing.Vector,
			Dimension:  existing.Dimension,
		}
		if err := idx.upsert(ctx, touched); err != nil {
			return fileResult{outcomeFailed, err}
		}
		return fileResult{outcome: outcomeTouched}
	}

	embedCtx, cancel := context.WithTimeout(ctx, idx.config.EmbedTimeout)
	emb, err := idx.engine.Embedder().GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: content})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return fileResult{outcome: outcomeInterrupted}
		}
		return fileResult{outcomeFailed, fmt.Errorf("%w: %w", ErrEmbedding, err)}
	}
	if len(emb.Vector) == 0 {
		return fileResult{outcomeFailed, fmt.Errorf("%w: provider returned an empty vector", ErrEmbedding)}
	}

	if err := idx.upsert(ctx, storage.NewDocument(relPath, content, modifiedAt, emb.Vector)); err != nil {
		return fileResult{outcomeFailed, err}
	}

	return fileResult{outcome: outcomeChanged}
}

// upsert writes doc; a write that has started is not cut short by cancellation
func (idx *Indexer) upsert(ctx context.Context, doc *storage.Document) error {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idx.config.StoreTimeout)
	defer cancel()
	return idx.engine.Store().UpsertDocument(storeCtx, doc)
}

// tally accumulates per-file outcomes from concurrent workers
type tally struct {
	mu    sync.Mutex
	stats *Statistics
}

func (t *tally) record(logger zerolog.Logger, path string, res fileResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch res.outcome {
	case outcomeChanged:
		t.stats.Scanned++
		t.stats.Changed++
		metrics.IngestFiles.WithLabelValues(metrics.OutcomeChanged).Inc()
	case outcomeSkipped:
		t.stats.Scanned++
		t.stats.Skipped++
		metrics.IngestFiles.WithLabelValues(metrics.OutcomeSkipped).Inc()
	case outcomeEmpty:
		t.stats.Scanned++
		t.stats.Empty++
		metrics.IngestFiles.WithLabelValues(metrics.OutcomeEmpty).Inc()
	case outcomeTouched:
		t.stats.Scanned++
		t.stats.Touched++
		metrics.IngestFiles.WithLabelValues(metrics.OutcomeTouched).Inc()
	case outcomeFailed:
		t.stats.Scanned++
		t.failLocked(logger, path, res.err)
	case outcomeInterrupted:
		t.stats.Interrupted = true
	}
}

func (t *tally) fail(logger zerolog.Logger, path string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failLocked(logger, path, err)
}

func (t *tally) failLocked(logger zerolog.Logger, path string, err error) {
	t.stats.Failed++
	t.stats.ErrorMessages = append(t.stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
	metrics.IngestFiles.WithLabelValues(metrics.OutcomeFailed).Inc()
	logger.Warn().Err(err).Str("path", path).Msg("failed to ingest file")
}

func (t *tally) interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Interrupted = true
}
