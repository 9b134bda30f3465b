// Package mock provides a deterministic embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic embeddings from a text hash.
// Similar texts do not get similar vectors; identical texts do get
// identical vectors, which is enough for deterministic tests.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given dimensionality.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from the text hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Linear congruential generator seeded by the hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently; it never partially fails.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int { return m.dimensions }

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}
