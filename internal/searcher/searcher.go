package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/metrics"
	"github.com/cg-ch/cycoach/internal/storage"
	"github.com/cg-ch/cycoach/pkg/types"
)

// Fusion weights applied to cosine similarity and normalized BM25
const (
	DefaultVectorWeight  = 0.7
	DefaultLexicalWeight = 0.3
)

const (
	DefaultLimit               = 5
	MaxLimit                   = 100
	DefaultLinearScanThreshold = 10000
	DefaultEmbedTimeout        = 30 * time.Second
	DefaultCacheSize           = 1000
	DefaultSnippetChars        = 300
)

// Search outcome labels
const (
	statusOK     = "ok"
	statusEmpty  = "empty"
	statusCached = "cached"
	statusError  = "error"
)

// Config tunes ranking and limits
type Config struct {
	DefaultLimit        int
	MaxLimit            int
	VectorWeight        float64
	LexicalWeight       float64
	LinearScanThreshold int           // Corpus size above which a one-time warning is logged
	EmbedTimeout        time.Duration // Bound on the query embedding call
	CacheSize           int           // Query cache entries; 0 disables the cache
}

// DefaultConfig returns the standard ranking configuration
func DefaultConfig() Config {
	return Config{
		DefaultLimit:        DefaultLimit,
		MaxLimit:            MaxLimit,
		VectorWeight:        DefaultVectorWeight,
		LexicalWeight:       DefaultLexicalWeight,
		LinearScanThreshold: DefaultLinearScanThreshold,
		EmbedTimeout:        DefaultEmbedTimeout,
		CacheSize:           DefaultCacheSize,
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query string
	Limit int // <= 0 selects Config.DefaultLimit
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results        []types.SearchResult
	TotalResults   int
	CorpusSize     int
	IndexEmpty     bool
	Duration       time.Duration
	SkippedCorrupt int // Snapshot records that could not be decoded plus those whose dimension differs from the query
	CacheHit       bool
}

// Searcher ranks the engine's current snapshot against a query
type Searcher struct {
	engine *memory.Engine
	config Config
	cache  *lru.Cache[[32]byte, *SearchResponse]

	scanWarning sync.Once
}

// New creates a Searcher. Zero fields in config take their defaults.
func New(engine *memory.Engine, config Config) *Searcher {
	defaults := DefaultConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaults.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = defaults.MaxLimit
	}
	if config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = config.MaxLimit
	}
	if config.VectorWeight == 0 && config.LexicalWeight == 0 {
		config.VectorWeight = defaults.VectorWeight
		config.LexicalWeight = defaults.LexicalWeight
	}
	if config.LinearScanThreshold <= 0 {
		config.LinearScanThreshold = defaults.LinearScanThreshold
	}
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = defaults.EmbedTimeout
	}

	s := &Searcher{
		engine: engine,
		config: config,
	}

	if config.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *SearchResponse](config.CacheSize)
		if err != nil {
			// This should never happen with a positive size
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}

	return s
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	return s.config
}

// Search ranks every document in the current snapshot against req.Query and
// returns the top req.Limit. An empty corpus is not an error: the response
// has IndexEmpty set and no results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()
	logger := s.engine.Logger()

	limit := s.effectiveLimit(req.Limit)

	ctx, span := metrics.StartSpan(ctx, "searcher.Search", attribute.Int("limit", limit))
	defer span.End()

	snap := s.engine.EnsureFresh(ctx)
	if snap.Empty() {
		logger.Warn().Str("query", req.Query).Msg("search on empty index")
		s.observe(statusEmpty, startTime)
		return &SearchResponse{
			Results:        []types.SearchResult{},
			IndexEmpty:     true,
			SkippedCorrupt: len(snap.Corrupt),
			Duration:       time.Since(startTime),
		}, nil
	}

	if snap.Len() > s.config.LinearScanThreshold {
		s.scanWarning.Do(func() {
			logger.Warn().
				Int("documents", snap.Len()).
				Int("threshold", s.config.LinearScanThreshold).
				Msg("corpus exceeds linear scan threshold, search latency will grow with every document")
		})
	}

	key := cacheKey(snap.Revision, limit, req.Query)
	if cached, ok := s.checkCache(key); ok {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		s.observe(statusCached, startTime)
		return cached, nil
	}

	// Lexical scoring only reads the immutable index, so it runs while the
	// query embedding is in flight.
	lexicalChan := make(chan []float64, 1)
	go func() {
		lexicalChan <- snap.Index.Score(req.Query)
	}()

	queryVector, err := s.embedQuery(ctx, snap, req.Query)
	if err != nil {
		span.RecordError(err)
		s.observe(statusError, startTime)
		return nil, err
	}
	metrics.AddEvent(ctx, "query embedded", attribute.Int("dimension", len(queryVector)))

	var lexicalScores []float64
	select {
	case lexicalScores = <-lexicalChan:
	case <-ctx.Done():
		s.observe(statusError, startTime)
		return nil, ctx.Err()
	}

	ranked, skipped := s.rank(snap, queryVector, lexicalScores)
	if skipped > 0 {
		logger.Warn().
			Int("skipped", skipped).
			Int("query_dimension", len(queryVector)).
			Msg("skipped documents whose embedding dimension differs from the query")
	}

	if limit > len(ranked) {
		limit = len(ranked)
	}
	results := make([]types.SearchResult, limit)
	for i := 0; i < limit; i++ {
		c := ranked[i]
		doc := snap.Documents[c.index]
		results[i] = types.SearchResult{
			Rank:         i + 1,
			Path:         doc.Path,
			Content:      doc.Content,
			Score:        c.score,
			VectorScore:  c.vector,
			LexicalScore: c.lexical,
			Source:       types.SourceHybrid,
		}
		if err := results[i].Validate(); err != nil {
			logger.Debug().Err(err).Str("path", doc.Path).Msg("search result failed validation")
		}
	}

	response := &SearchResponse{
		Results:        results,
		TotalResults:   len(results),
		CorpusSize:     snap.Len(),
		SkippedCorrupt: len(snap.Corrupt) + skipped,
	}
	s.storeInCache(key, response)

	response.Duration = time.Since(startTime)
	s.observe(statusOK, startTime)

	logger.Debug().
		Str("query", req.Query).
		Int("results", len(results)).
		Int("corpus", snap.Len()).
		Dur("elapsed", response.Duration).
		Msg("search completed")

	return response, nil
}

// candidate is one scored document, index into the snapshot
type candidate struct {
	index   int
	score   float64
	vector  float64
	lexical float64
}

// rank scores every document and sorts by descending fused score.
// Ties keep corpus order. Returns the number of documents skipped for a
// dimension mismatch.
func (s *Searcher) rank(snap *memory.Snapshot, queryVector []float32, lexicalScores []float64) ([]candidate, int) {
	maxLexical := 0.0
	for _, score := range lexicalScores {
		if score > maxLexical {
			maxLexical = score
		}
	}

	candidates := make([]candidate, 0, len(snap.Documents))
	skipped := 0
	for i, doc := range snap.Documents {
		if len(doc.Embedding) != len(queryVector) {
			skipped++
			continue
		}

		lexical := 0.0
		if maxLexical > 0 {
			lexical = lexicalScores[i] / maxLexical
		}
		vector := storage.Dot(queryVector, doc.Embedding)

		candidates = append(candidates, candidate{
			index:   i,
			score:   s.config.VectorWeight*vector + s.config.LexicalWeight*lexical,
			vector:  vector,
			lexical: lexical,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	return candidates, skipped
}

// embedQuery embeds the query. A blank query that the provider rejects
// falls back to the zero vector; every other failure is returned.
func (s *Searcher) embedQuery(ctx context.Context, snap *memory.Snapshot, query string) ([]float32, error) {
	emb := s.engine.Embedder()

	embedCtx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
	defer cancel()

	embedding, err := emb.GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: query})
	if err == nil {
		return embedding.Vector, nil
	}

	if strings.TrimSpace(query) == "" {
		// Remote providers learn their dimension from the first response
		dimension := emb.Dimension()
		if dimension == 0 && snap.Len() > 0 {
			dimension = len(snap.Documents[0].Embedding)
		}
		logger := s.engine.Logger()
		logger.Debug().Err(err).Int("dimension", dimension).Msg("blank query could not be embedded, using zero vector")
		return make([]float32, dimension), nil
	}

	return nil, fmt.Errorf("failed to generate query embedding: %w", err)
}

func (s *Searcher) effectiveLimit(limit int) int {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return limit
}

func (s *Searcher) observe(status string, start time.Time) {
	metrics.Searches.WithLabelValues(status).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
}

// checkCache returns a copy of a cached response
func (s *Searcher) checkCache(key [32]byte) (*SearchResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return copySearchResponse(entry), true
}

func (s *Searcher) storeInCache(key [32]byte, response *SearchResponse) {
	if s.cache == nil {
		return
	}
	s.cache.Add(key, copySearchResponse(response))
}

// copySearchResponse creates a deep copy of a SearchResponse.
// SearchResult holds only value fields, so copying the slice is enough.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// cacheKey hashes the snapshot revision with the request, so a rebuilt
// snapshot never serves stale entries.
func cacheKey(revision int64, limit int, query string) [32]byte {
	var data strings.Builder
	data.WriteString(strconv.FormatInt(revision, 10))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(limit))
	data.WriteString("|")
	data.WriteString(query)
	return sha256.Sum256([]byte(data.String()))
}

// FormatContext renders results as a bulleted context block, one
// "- <snippet>" line per result with at most maxChars characters of content.
// maxChars <= 0 uses DefaultSnippetChars.
func FormatContext(results []types.SearchResult, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultSnippetChars
	}
	lines := make([]string, 0, len(results))
	for i := range results {
		lines = append(lines, "- "+results[i].Snippet(maxChars))
	}
	return strings.Join(lines, "\n")
}
