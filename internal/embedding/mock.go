package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder is a deterministic embedder for tests and offline development.
// The same text always maps to the same unit-length vector.
type MockEmbedder struct {
	dimensions int
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns a deterministic embedder of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 16
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns one deterministic vector per text, derived from the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum32()
		vec := make([]float32, e.dimensions)
		for j := 0; j < e.dimensions; j++ {
			vec[j] = float32(math.Sin(float64(seed)*float64(j+1))*0.1 + 0.01)
		}
		var sum float64
		for _, v := range vec {
			sum += float64(v * v)
		}
		if sum > 0 {
			norm := 1.0 / math.Sqrt(sum)
			for j := range vec {
				vec[j] *= float32(norm)
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}
