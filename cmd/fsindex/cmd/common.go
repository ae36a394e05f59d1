package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsindex/fsindex/internal/classifier"
	"github.com/fsindex/fsindex/internal/config"
	"github.com/fsindex/fsindex/internal/embed"
	"github.com/fsindex/fsindex/internal/keyword"
	"github.com/fsindex/fsindex/internal/logging"
	"github.com/fsindex/fsindex/internal/vector"
)

// loadConfig reads configPath if set, otherwise falls back to built-in
// defaults — fsindex has no notion of an implicit project-local config file
// (that CLI-discovery behavior is out of the ambient surface this spec
// covers).
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func policyFromConfig(cfg config.Config) classifier.Policy {
	return classifier.Policy{
		MaxFileSize:                 cfg.MaxFileSize,
		ExcludedExtensions:          cfg.ExcludedExtensions,
		ExcludedDirs:                cfg.ExcludedDirs,
		SupportedTextExtensions:     cfg.SupportedTextExtensions,
		SupportedDocumentExtensions: cfg.SupportedDocumentExtensions,
	}
}

// openStores opens the keyword index and the vector store; with no embedding
// model configured the vector store uses the built-in static embedder. The
// vector store is returned nil when the embedder or the store can't be
// constructed, per spec.md §7's "vector subsystem unavailable" disposition:
// callers fall back to keyword-only.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*keyword.Index, *vector.Store, error) {
	kw, err := keyword.Open(cfg.IndexDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open keyword index: %w", err)
	}

	embedder, err := embed.New(ctx, cfg.Embedding.ModelName, cfg.Embedding.CacheModels, 512)
	if err != nil {
		logger.Warn("vector subsystem unavailable, running keyword-only", slog.String("error", err.Error()))
		return kw, nil, nil
	}

	vecStore, err := vector.Open(cfg.VectorDBPath, embedder, vector.DefaultConfig())
	if err != nil {
		logger.Warn("vector store open failed, running keyword-only", slog.String("error", err.Error()))
		return kw, nil, nil
	}

	return kw, vecStore, nil
}

func defaultLogger() *slog.Logger {
	logger, _, err := logging.Setup(logging.DefaultConfig(""))
	if err != nil {
		return logging.Discard()
	}
	return logger
}
