package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeVector converts a float32 slice to a little-endian byte blob
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptVector)
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of 4", ErrCorruptVector, len(blob))
	}

	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

// dot computes the inner product of two equal-length vectors
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Exported functions for use by other packages

// SerializeVector converts a float32 slice to a byte blob
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector converts a byte blob back to a float32 slice.
// Returns ErrCorruptVector for empty blobs or lengths that are not a multiple of 4.
func DeserializeVector(blob []byte) ([]float32, error) {
	return deserializeVector(blob)
}

// Dot computes the inner product, which equals cosine similarity for unit vectors.
// Returns 0 when the dimensions differ.
func Dot(a, b []float32) float64 {
	return dot(a, b)
}
