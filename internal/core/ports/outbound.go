package ports

import (
	"context"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
)

// Embedder encodes text into fixed-length, normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbor search over the chunk embeddings.
// Hits come back in index order, most similar first, with raw distances.
type VectorIndex interface {
	Query(ctx context.Context, queryVector []float32, n int) ([]domain.VectorHit, error)
}

// LexicalIndex scores a single chunk against a sanitized literal phrase.
// The returned score is higher-is-better regardless of the underlying
// engine's convention; ok is false when the engine reports no match.
type LexicalIndex interface {
	Score(ctx context.Context, chunkID, phrase string) (score float64, ok bool, err error)
}
