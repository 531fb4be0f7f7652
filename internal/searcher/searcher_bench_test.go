package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cg-ch/cycoach/internal/embedder"
	"github.com/cg-ch/cycoach/internal/memory"
	"github.com/cg-ch/cycoach/internal/storage"
)

var benchWords = []string{
	"run", "bike", "swim", "sleep", "coffee", "meeting", "plan", "goal",
	"tired", "happy", "knee", "recovery", "interval", "tempo", "rest", "diet",
}

func setupBenchSearcher(b *testing.B, size int) *Searcher {
	b.Helper()

	local, err := embedder.NewLocalProvider(nil)
	require.NoError(b, err)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(b, err)
	b.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i := 0; i < size; i++ {
		content := fmt.Sprintf("day %d %s %s %s", i,
			benchWords[i%len(benchWords)], benchWords[(i*7)%len(benchWords)], benchWords[(i*3)%len(benchWords)])
		emb, err := local.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: content})
		require.NoError(b, err)
		require.NoError(b, store.UpsertDocument(ctx, storage.NewDocument(fmt.Sprintf("%05d.md", i), content, 1, emb.Vector)))
	}

	engine, err := memory.NewEngine(ctx, store, local, memory.Options{})
	require.NoError(b, err)
	return New(engine, Config{})
}

func BenchmarkSearch(b *testing.B) {
	for _, size := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("docs=%d", size), func(b *testing.B) {
			s := setupBenchSearcher(b, size)
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, SearchRequest{Query: "interval run recovery"}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch_Cached(b *testing.B) {
	s := setupBenchSearcher(b, 1000)
	s = New(s.engine, Config{CacheSize: 100})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, SearchRequest{Query: "interval run recovery"}); err != nil {
			b.Fatal(err)
		}
	}
}
