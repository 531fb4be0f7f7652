package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ComputeHash(""))
	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
}

func TestCacheKey_ScopedByModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
	assert.Equal(t, cacheKey("a", "text"), cacheKey("a", "text"))
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     EmbeddingRequest
		wantErr error
	}{
		{"valid request", EmbeddingRequest{Text: "test text"}, nil},
		{"empty text", EmbeddingRequest{Text: ""}, ErrEmptyText},
		{"whitespace only", EmbeddingRequest{Text: " \n\t"}, ErrEmptyText},
		{"with model", EmbeddingRequest{Text: "test", Model: "custom-model"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchEmbeddingRequest
		wantErr bool
	}{
		{"valid batch", BatchEmbeddingRequest{Texts: []string{"text1", "text2"}}, false},
		{"empty batch", BatchEmbeddingRequest{Texts: []string{}}, true},
		{"contains empty text", BatchEmbeddingRequest{Texts: []string{"text1", "", "text3"}}, true},
		{"contains blank text", BatchEmbeddingRequest{Texts: []string{"text1", "  "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("k", &Embedding{Vector: []float32{1, 2}, Dimension: 2})

		first, ok := cache.Get("k")
		require.True(t, ok)
		first.Vector[0] = 99

		second, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), second.Vector[0])
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 2}, Dimension: 2}
		cache.Set("k", emb)
		emb.Vector[0] = 99

		got, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), got.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{})
		cache.Set("b", &Embedding{})
		_, _ = cache.Get("a")
		cache.Set("c", &Embedding{})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("b")
		assert.False(t, ok)
		_, ok = cache.Get("a")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider := mustNewLocalProvider(t)

	t.Run("metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, provider.Provider())
		assert.Equal(t, DefaultLocalModel, provider.Model())
		assert.Equal(t, LocalDimension, provider.Dimension())
		assert.NoError(t, provider.Close())
	})

	t.Run("unit length", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "slept eight hours after the long run"})
		require.NoError(t, err)
		require.Len(t, emb.Vector, LocalDimension)
		assert.InDelta(t, 1.0, norm(emb.Vector), 1e-5)
	})

	t.Run("deterministic", func(t *testing.T) {
		fresh := mustNewLocalProvider(t)
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Morning Run"})
		require.NoError(t, err)
		b, err := fresh.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Morning Run"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
	})

	t.Run("case and spacing insensitive", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Morning   RUN"})
		require.NoError(t, err)
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "morning run"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, b.Vector)
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		query, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "marathon training plan"})
		require.NoError(t, err)
		related, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "my marathon training plan for spring"})
		require.NoError(t, err)
		unrelated, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "grocery list eggs milk"})
		require.NoError(t, err)

		assert.Greater(t, dot(query.Vector, related.Vector), dot(query.Vector, unrelated.Vector))
	})

	t.Run("blank text yields zero vector", func(t *testing.T) {
		for _, text := range []string{"", "   \n"} {
			emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
			require.NoError(t, err)
			require.Len(t, emb.Vector, LocalDimension)
			assert.Equal(t, 0.0, norm(emb.Vector))
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x", Model: "other"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("batch keeps order", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"one", "two"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)

		one, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "one"})
		require.NoError(t, err)
		assert.Equal(t, one.Vector, resp.Embeddings[0].Vector)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := NormalizeVector([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)

	input := []float32{1, 1}
	_ = NormalizeVector(input)
	assert.Equal(t, []float32{1, 1}, input, "input must not be modified")
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	return provider
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
