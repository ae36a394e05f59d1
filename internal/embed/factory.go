package embed

import (
	"context"
	"fmt"
)

// New builds an Embedder for the given model name, wrapping it in a
// CachedEmbedder when cacheModels is set. "static" and "" select the
// hash-based fallback; anything else is treated as an Ollama model name.
func New(ctx context.Context, modelName string, cacheModels bool, cacheSize int) (Embedder, error) {
	var embedder Embedder
	var err error

	switch modelName {
	case "", "static":
		embedder = NewStaticEmbedder()
	default:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{Model: modelName})
		if err != nil {
			return nil, fmt.Errorf("embed: build embedder for model %q: %w", modelName, err)
		}
	}

	if cacheModels {
		embedder = NewCachedEmbedder(embedder, cacheSize)
	}
	return embedder, nil
}
