package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	vector := []float32{0, -1.5, 3.25, float32(math.SmallestNonzeroFloat32)}

	blob := SerializeVector(vector)
	assert.Len(t, blob, 16)

	got, err := DeserializeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}

func TestDeserializeVector_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"truncated", []byte{0, 0, 128}},
		{"trailing byte", []byte{0, 0, 128, 63, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeVector(tt.blob)
			assert.ErrorIs(t, err, ErrCorruptVector)
		})
	}
}

func TestDocumentEmbedding_DimensionMismatch(t *testing.T) {
	doc := &Document{Path: "a.md", Vector: SerializeVector([]float32{1, 2, 3}), Dimension: 4}

	_, err := doc.Embedding()
	assert.ErrorIs(t, err, ErrCorruptVector)
	assert.Contains(t, err.Error(), "a.md")
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 1.0, Dot([]float32{0.6, 0.8}, []float32{0.6, 0.8}), 1e-6)
	assert.InDelta(t, 0.0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Dot([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Dot([]float32{1, 0}, []float32{1}))
}

func BenchmarkDot384(b *testing.B) {
	a := make([]float32, 384)
	c := make([]float32, 384)
	for i := range a {
		a[i] = float32(i) / 384
		c[i] = float32(384-i) / 384
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Dot(a, c)
	}
}
