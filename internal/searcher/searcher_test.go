package searcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/storage"
	"github.com/cg-ch/cycoach/pkg/types"
)

// stubEmbedder maps known texts to fixed 3-dimensional vectors
type stubEmbedder struct {
	vectors map[string][]float32
	fail    func(text string) error
	calls   atomic.Int32

	// reports dimension 0, like a remote provider before its first call
	unknownDimension bool
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	s.calls.Add(1)
	if s.fail != nil {
		if err := s.fail(req.Text); err != nil {
			return nil, err
		}
	}
	vector, ok := s.vectors[req.Text]
	if !ok {
		vector = []float32{1, 0, 0}
	}
	return &embedder.Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  "stub",
		Model:     "stub-v1",
		Hash:      embedder.ComputeHash(req.Text),
	}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{Provider: "stub", Model: "stub-v1"}
	for _, text := range req.Texts {
		emb, err := s.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (s *stubEmbedder) Dimension() int {
	if s.unknownDimension {
		return 0
	}
	return 3
}

func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub-v1" }
func (s *stubEmbedder) Close() error     { return nil }

type testDoc struct {
	path    string
	content string
	vector  []float32
}

type fixture struct {
	store  *storage.SQLiteStorage
	engine *memory.Engine
	logs   *bytes.Buffer
}

func setup(t *testing.T, emb embedder.Embedder, docs ...testDoc) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, logs: &bytes.Buffer{}}
	for _, d := range docs {
		f.put(t, d)
	}

	f.engine, err = memory.NewEngine(context.Background(), store, emb, memory.Options{
		Logger: zerolog.New(zerolog.SyncWriter(f.logs)),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) put(t *testing.T, d testDoc) {
	t.Helper()
	require.NoError(t, f.store.UpsertDocument(context.Background(),
		storage.NewDocument(d.path, d.content, 1, d.vector)))
}

func paths(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := setup(t, &stubEmbedder{})
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.True(t, resp.IndexEmpty)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.CorpusSize)
	assert.Contains(t, f.logs.String(), "search on empty index")
}

func TestSearch_HybridScore(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"alpha": {1, 0, 0}}}
	f := setup(t, emb,
		testDoc{"a.md", "alpha", []float32{1, 0, 0}},
		testDoc{"b.md", "beta", []float32{0, 1, 0}},
		testDoc{"c.md", "gamma alpha", []float32{0, 0, 1}},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "alpha"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"a.md", "c.md", "b.md"}, paths(resp.Results))
	assert.Equal(t, 3, resp.CorpusSize)
	assert.Equal(t, 3, resp.TotalResults)

	top := resp.Results[0]
	assert.InDelta(t, 1.0, top.VectorScore, 1e-6)
	assert.InDelta(t, 1.0, top.LexicalScore, 1e-9)
	assert.InDelta(t, 1.0, top.Score, 1e-6)

	second := resp.Results[1]
	assert.InDelta(t, 0.0, second.VectorScore, 1e-9)
	assert.Greater(t, second.LexicalScore, 0.0)
	assert.Less(t, second.LexicalScore, 1.0)
	assert.InDelta(t, DefaultLexicalWeight*second.LexicalScore, second.Score, 1e-9)

	assert.Equal(t, 0.0, resp.Results[2].Score)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, types.SourceHybrid, r.Source)
		assert.NoError(t, r.Validate())
	}
}

func TestSearch_TiesKeepCorpusOrder(t *testing.T) {
	same := []float32{0, 1, 0}
	f := setup(t, &stubEmbedder{},
		testDoc{"c.md", "three", same},
		testDoc{"a.md", "one", same},
		testDoc{"b.md", "two", same},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "unmatched"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, paths(resp.Results))
	for _, r := range resp.Results {
		assert.Equal(t, 0.0, r.Score)
	}
}

func TestSearch_NoLexicalMatchIsNotNaN(t *testing.T) {
	f := setup(t, &stubEmbedder{},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"b.md", "two", []float32{0, 1, 0}},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "nothing matches"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Equal(t, 0.0, r.LexicalScore)
		assert.False(t, math.IsNaN(r.Score))
	}
	assert.Equal(t, "a.md", resp.Results[0].Path)
	assert.InDelta(t, DefaultVectorWeight, resp.Results[0].Score, 1e-6)
}

func TestSearch_Relevance(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	docs := []testDoc{
		{"journal/run.md", "marathon training plan with a long run on sunday", nil},
		{"journal/food.md", "grocery list eggs milk bread and coffee", nil},
		{"journal/sleep.md", "sleep quality notes and bedtime routine", nil},
	}
	for i := range docs {
		emb, err := local.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{Text: docs[i].content})
		require.NoError(t, err)
		docs[i].vector = emb.Vector
	}

	f := setup(t, local, docs...)
	s := New(f.engine, Config{})

	tests := []struct {
		query string
		want  string
	}{
		{"marathon training", "journal/run.md"},
		{"what should I buy at the grocery", "journal/food.md"},
		{"bedtime routine", "journal/sleep.md"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := s.Search(context.Background(), SearchRequest{Query: tt.query, Limit: 1})
			require.NoError(t, err)
			require.Len(t, resp.Results, 1)
			assert.Equal(t, tt.want, resp.Results[0].Path)
		})
	}
}

func TestSearch_Deterministic(t *testing.T) {
	var docs []testDoc
	for i := 0; i < 20; i++ {
		docs = append(docs, testDoc{
			path:    fmt.Sprintf("note-%02d.md", i),
			content: fmt.Sprintf("note %d about topic %d", i, i%3),
			vector:  []float32{float32(i % 3), 1, 0},
		})
	}
	f := setup(t, &stubEmbedder{}, docs...)
	s := New(f.engine, Config{})

	first, err := s.Search(context.Background(), SearchRequest{Query: "topic 1", Limit: 20})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Search(context.Background(), SearchRequest{Query: "topic 1", Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestSearch_Limit(t *testing.T) {
	var docs []testDoc
	for i := 0; i < 120; i++ {
		docs = append(docs, testDoc{fmt.Sprintf("%03d.md", i), "entry", []float32{1, 0, 0}})
	}
	f := setup(t, &stubEmbedder{}, docs...)
	s := New(f.engine, Config{})

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultLimit},
		{"negative", -3, DefaultLimit},
		{"explicit", 7, 7},
		{"capped", 500, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Search(context.Background(), SearchRequest{Query: "entry", Limit: tt.limit})
			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.want)
			assert.Equal(t, 120, resp.CorpusSize)
		})
	}
}

func TestSearch_LimitAboveCorpus(t *testing.T) {
	f := setup(t, &stubEmbedder{},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"b.md", "two", []float32{1, 0, 0}},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "one", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearch_BlankQueryFallsBackToZeroVector(t *testing.T) {
	tests := []struct {
		name             string
		unknownDimension bool
	}{
		{"known dimension", false},
		{"dimension not yet known", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &stubEmbedder{
				unknownDimension: tt.unknownDimension,
				fail: func(text string) error {
					if strings.TrimSpace(text) == "" {
						return embedder.ErrEmptyText
					}
					return nil
				},
			}
			f := setup(t, emb,
				testDoc{"b.md", "two", []float32{0, 1, 0}},
				testDoc{"a.md", "one", []float32{1, 0, 0}},
			)
			s := New(f.engine, Config{})

			for _, query := range []string{"", "   \n\t"} {
				resp, err := s.Search(context.Background(), SearchRequest{Query: query})
				require.NoError(t, err)
				assert.Equal(t, []string{"a.md", "b.md"}, paths(resp.Results))
				assert.Equal(t, 0, resp.SkippedCorrupt)
				assert.Equal(t, 2, resp.CorpusSize)
				for _, r := range resp.Results {
					assert.Equal(t, 0.0, r.Score)
				}
			}
		})
	}
}

func TestSearch_LogsInvalidResults(t *testing.T) {
	f := setup(t, &stubEmbedder{},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"blank.md", "", []float32{0, 1, 0}},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Contains(t, f.logs.String(), "search result failed validation")
	assert.Contains(t, f.logs.String(), "blank.md")
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	boom := errors.New("provider unavailable")
	emb := &stubEmbedder{fail: func(string) error { return boom }}
	f := setup(t, emb, testDoc{"a.md", "one", []float32{1, 0, 0}})
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "one"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSearch_SkipsDimensionMismatch(t *testing.T) {
	f := setup(t, &stubEmbedder{},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"b.md", "two", []float32{1, 0}},
		testDoc{"c.md", "three", []float32{0, 1, 0}},
	)
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "c.md"}, paths(resp.Results))
	assert.Equal(t, 1, resp.SkippedCorrupt)
	assert.Equal(t, 3, resp.CorpusSize)
	assert.Contains(t, f.logs.String(), "dimension differs")
}

func TestSearch_SeesNewDocuments(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{"two": {0, 1, 0}}}
	f := setup(t, emb, testDoc{"a.md", "one", []float32{1, 0, 0}})
	s := New(f.engine, Config{})

	resp, err := s.Search(context.Background(), SearchRequest{Query: "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.CorpusSize)

	f.put(t, testDoc{"b.md", "two", []float32{0, 1, 0}})

	resp, err = s.Search(context.Background(), SearchRequest{Query: "two"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CorpusSize)
	assert.Equal(t, "b.md", resp.Results[0].Path)
}

func TestSearch_Cache(t *testing.T) {
	emb := &stubEmbedder{}
	f := setup(t, emb, testDoc{"a.md", "one", []float32{1, 0, 0}})
	s := New(f.engine, Config{CacheSize: 10})
	ctx := context.Background()

	first, err := s.Search(ctx, SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Mutating a returned response must not leak into the cache
	first.Results[0].Path = "mutated"

	second, err := s.Search(ctx, SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "a.md", second.Results[0].Path)
	assert.Equal(t, int32(1), emb.calls.Load())

	// Different limit is a different entry
	_, err = s.Search(ctx, SearchRequest{Query: "one", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(2), emb.calls.Load())

	// A write changes the revision
	f.put(t, testDoc{"b.md", "two", []float32{0, 1, 0}})
	third, err := s.Search(ctx, SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, third.CorpusSize)
}

func TestSearch_CacheDisabledByDefault(t *testing.T) {
	emb := &stubEmbedder{}
	f := setup(t, emb, testDoc{"a.md", "one", []float32{1, 0, 0}})
	s := New(f.engine, Config{})

	for i := 0; i < 3; i++ {
		resp, err := s.Search(context.Background(), SearchRequest{Query: "one"})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	}
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestSearch_LinearScanWarningOnce(t *testing.T) {
	f := setup(t, &stubEmbedder{},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"b.md", "two", []float32{1, 0, 0}},
		testDoc{"c.md", "three", []float32{1, 0, 0}},
	)
	s := New(f.engine, Config{LinearScanThreshold: 2})

	for i := 0; i < 3; i++ {
		_, err := s.Search(context.Background(), SearchRequest{Query: "one"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, strings.Count(f.logs.String(), "linear scan threshold"))
}

func TestSearch_CustomWeights(t *testing.T) {
	f := setup(t, &stubEmbedder{vectors: map[string][]float32{"one": {0, 0, 1}}},
		testDoc{"a.md", "one", []float32{1, 0, 0}},
		testDoc{"b.md", "two", []float32{0, 0, 1}},
	)

	lexicalOnly := New(f.engine, Config{LexicalWeight: 1})
	resp, err := lexicalOnly.Search(context.Background(), SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.Equal(t, "a.md", resp.Results[0].Path)

	vectorOnly := New(f.engine, Config{VectorWeight: 1})
	resp, err = vectorOnly.Search(context.Background(), SearchRequest{Query: "one"})
	require.NoError(t, err)
	assert.Equal(t, "b.md", resp.Results[0].Path)
}

func TestSearch_ConcurrentWithWrites(t *testing.T) {
	f := setup(t, &stubEmbedder{}, testDoc{"seed.md", "seed", []float32{1, 0, 0}})
	s := New(f.engine, Config{CacheSize: 16})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				resp, err := s.Search(context.Background(), SearchRequest{Query: "seed"})
				if assert.NoError(t, err) {
					assert.NotEmpty(t, resp.Results)
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		f.put(t, testDoc{fmt.Sprintf("w-%02d.md", i), "written", []float32{0, 1, 0}})
	}
	wg.Wait()
}

func TestNew_Defaults(t *testing.T) {
	f := setup(t, &stubEmbedder{})

	cfg := New(f.engine, Config{}).Config()
	assert.Equal(t, DefaultLimit, cfg.DefaultLimit)
	assert.Equal(t, MaxLimit, cfg.MaxLimit)
	assert.Equal(t, DefaultVectorWeight, cfg.VectorWeight)
	assert.Equal(t, DefaultLexicalWeight, cfg.LexicalWeight)
	assert.Equal(t, DefaultLinearScanThreshold, cfg.LinearScanThreshold)
	assert.Equal(t, DefaultEmbedTimeout, cfg.EmbedTimeout)
	assert.Equal(t, 0, cfg.CacheSize)

	cfg = New(f.engine, Config{DefaultLimit: 50, MaxLimit: 10}).Config()
	assert.Equal(t, 10, cfg.DefaultLimit)
}

func TestFormatContext(t *testing.T) {
	long := strings.Repeat("é", 400)
	results := []types.SearchResult{
		{Rank: 1, Path: "a.md", Content: "short note"},
		{Rank: 2, Path: "b.md", Content: long},
	}

	out := FormatContext(results, 0)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "- short note", lines[0])
	assert.Equal(t, "- "+strings.Repeat("é", DefaultSnippetChars), lines[1])

	assert.Equal(t, "- short", FormatContext(results[:1], 5))
	assert.Equal(t, "", FormatContext(nil, 10))
}
