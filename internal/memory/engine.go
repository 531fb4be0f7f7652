// Package memory owns the document store and embedding provider together
// with the immutable corpus snapshot that search reads from.
//
// A Snapshot pairs the decoded documents with a BM25 index built from exactly
// those documents in the same order. Snapshots are published atomically and
// never modified, so searches run lock-free against whichever snapshot was
// current when they started.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/lexical"
	"github.com/cg-ch/cycoach/internal/metrics"
	"github.com/cg-ch/cycoach/internal/storage"
)

// ErrIngestInProgress is returned when an ingest is attempted while another holds the lock
var ErrIngestInProgress = errors.New("ingest already in progress")

// DefaultStoreTimeout bounds a single store call made on behalf of the engine
const DefaultStoreTimeout = 10 * time.Second

// Document is a decoded store record as seen by search
type Document struct {
	Path       string
	Content    string
	ModifiedAt float64
	Embedding  []float32
}

// Snapshot is an immutable view of the corpus.
// Index was built from Documents in the same order.
type Snapshot struct {
	Documents []Document
	Index     *lexical.Index
	Revision  int64
	BuiltAt   time.Time
	Corrupt   []string // Paths skipped because their embedding could not be decoded
}

// Len returns the number of searchable documents
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Documents)
}

// Empty reports whether there is nothing to search
func (s *Snapshot) Empty() bool {
	return s.Len() == 0
}

// Options configures an Engine
type Options struct {
	Params       lexical.Params
	Logger       zerolog.Logger
	StoreTimeout time.Duration
}

// Engine ties the store, the embedder and the current snapshot together
type Engine struct {
	store        storage.Storage
	embedder     embedder.Embedder
	params       lexical.Params
	logger       zerolog.Logger
	storeTimeout time.Duration

	ingestLock IndexLock
	refreshMu  sync.Mutex
	snapshot   atomic.Pointer[Snapshot]
}

// NewEngine creates an engine and loads the initial snapshot from the store
func NewEngine(ctx context.Context, store storage.Storage, emb embedder.Embedder, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("memory: store is required")
	}
	if emb == nil {
		return nil, errors.New("memory: embedder is required")
	}
	if opts.Params == (lexical.Params{}) {
		opts.Params = lexical.DefaultParams()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	e := &Engine{
		store:        store,
		embedder:     emb,
		params:       opts.Params,
		logger:       opts.Logger,
		storeTimeout: opts.StoreTimeout,
	}

	if _, err := e.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	return e, nil
}

// Store returns the document store
func (e *Engine) Store() storage.Storage { return e.store }

// Embedder returns the embedding provider
func (e *Engine) Embedder() embedder.Embedder { return e.embedder }

// Logger returns the engine's logger
func (e *Engine) Logger() zerolog.Logger { return e.logger }

// StoreTimeout returns the bound applied to individual store calls
func (e *Engine) StoreTimeout() time.Duration { return e.storeTimeout }

// Snapshot returns the current snapshot. It is never nil after NewEngine.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Refresh reloads every document from the store, rebuilds the lexical index
// and publishes the result as the new snapshot.
func (e *Engine) Refresh(ctx context.Context) (*Snapshot, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	return e.rebuild(ctx)
}

// rebuild requires refreshMu
func (e *Engine) rebuild(ctx context.Context) (*Snapshot, error) {
	ctx, span := metrics.StartSpan(ctx, "memory.Refresh")
	defer span.End()

	start := time.Now()

	// Read the revision first: a write racing with the listing leaves the
	// snapshot looking stale, never fresher than it is.
	revision, err := e.revision(ctx)
	if err != nil {
		return nil, err
	}

	listCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	records, err := e.store.ListDocuments(listCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	snap := &Snapshot{
		Documents: make([]Document, 0, len(records)),
		Revision:  revision,
	}
	for _, rec := range records {
		vector, err := rec.Embedding()
		if err != nil {
			e.logger.Warn().Err(err).Str("path", rec.Path).Msg("skipping document with corrupt embedding")
			metrics.CorruptRecords.Inc()
			snap.Corrupt = append(snap.Corrupt, rec.Path)
			continue
		}
		snap.Documents = append(snap.Documents, Document{
			Path:       rec.Path,
			Content:    rec.Content,
			ModifiedAt: rec.ModifiedAt,
			Embedding:  vector,
		})
	}

	corpus := make([]string, len(snap.Documents))
	for i, doc := range snap.Documents {
		corpus[i] = doc.Content
	}
	snap.Index = lexical.Build(corpus, e.params)
	snap.BuiltAt = time.Now()

	e.snapshot.Store(snap)

	metrics.IndexRebuilds.Inc()
	metrics.IndexDocuments.Set(float64(snap.Len()))
	e.logger.Debug().
		Int("documents", snap.Len()).
		Int("corrupt", len(snap.Corrupt)).
		Int64("revision", revision).
		Dur("elapsed", time.Since(start)).
		Msg("corpus snapshot rebuilt")

	return snap, nil
}

// EnsureFresh returns a snapshot that reflects the store's current revision.
// It rebuilds when the snapshot is stale unless an ingest holds the lock, in
// which case the current snapshot is returned and the ingest will publish its
// own rebuild when done. Store errors are logged and the current snapshot used.
func (e *Engine) EnsureFresh(ctx context.Context) *Snapshot {
	current := e.Snapshot()

	revision, err := e.revision(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("could not read store revision, using current snapshot")
		return current
	}
	if current != nil && current.Revision == revision {
		return current
	}
	if e.ingestLock.Held() {
		return current
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	// An ingest may have started while waiting for the mutex; its batch is
	// only published by its own rebuild.
	if e.ingestLock.Held() {
		return e.Snapshot()
	}

	snap, err := e.rebuild(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("snapshot rebuild failed, using current snapshot")
		return e.Snapshot()
	}
	return snap
}

func (e *Engine) revision(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	revision, err := e.store.Revision(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read store revision: %w", err)
	}
	return revision, nil
}

// TryBeginIngest takes the ingest lock without blocking
func (e *Engine) TryBeginIngest() bool {
	return e.ingestLock.TryAcquire()
}

// EndIngest releases the ingest lock
func (e *Engine) EndIngest() {
	e.ingestLock.Release()
}

// IngestInProgress reports whether an ingest currently holds the lock
func (e *Engine) IngestInProgress() bool {
	return e.ingestLock.Held()
}
