// Package embedder defines the text-to-vector contract used by the
// semantic index at both ingestion and query time.
package embedder

import "context"

// Embedder converts text to fixed-dimension vectors.
//
// Implementations must apply their own request timeout and bounded retry;
// exhausting retries surfaces core.ErrEmbeddingUnavailable. Batch calls
// are atomic: if the provider cannot embed every input, the whole batch
// fails and no partial results are returned.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts, preserving per-input
	// correspondence: result[i] is the embedding of texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
