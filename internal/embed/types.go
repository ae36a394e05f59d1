// Package embed provides pluggable text-to-vector embedders for the vector
// index (spec.md §4.5). Embedders are swappable behind a single interface;
// internal/vector depends on none of the concrete types here, only on its
// own local Embedder interface that these types satisfy structurally.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding HTTP round trip.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for a
	// network-backed embedder.
	DefaultMaxRetries = 3

	// StaticDimensions is the embedding dimension produced by StaticEmbedder.
	StaticDimensions = 256

	// DefaultEmbeddingCacheSize is the default number of query embeddings
	// CachedEmbedder keeps in memory.
	DefaultEmbeddingCacheSize = 1000
)

// Embedder generates vector embeddings for text. internal/vector's own
// Embedder interface requires only Embed/Dimensions/ModelName; every type in
// this package satisfies that subset plus the extras below.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector returns v scaled to unit length, or v unchanged if it is
// the zero vector.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
