package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsindex/fsindex/internal/chunk"
	"github.com/fsindex/fsindex/internal/manager"
)

func newIndexCmd() *cobra.Command {
	var lockDir string

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Bulk-index a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return runIndex(cmd, root, lockDir)
		},
	}

	cmd.Flags().StringVar(&lockDir, "lock-dir", "", "directory for the cross-process startup lock (defaults to no locking)")
	return cmd
}

func runIndex(cmd *cobra.Command, root, lockDir string) error {
	ctx := cmd.Context()
	logger := defaultLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.MonitoredPaths = []string{root}

	kw, vecStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = kw.Close() }()
	if vecStore != nil {
		defer func() { _ = vecStore.Close() }()
	}

	mgr := manager.New(manager.Config{
		MonitoredPaths: cfg.MonitoredPaths,
		Policy:         policyFromConfig(cfg),
		ChunkOptions:   chunk.Options{ChunkSize: cfg.Embedding.ChunkSize, ChunkOverlap: cfg.Embedding.ChunkOverlap},
		MaxWorkers:     cfg.MaxWorkers,
		QueueCapacity:  10_000,
		SimilarityTopK: cfg.Embedding.SimilarityTopK,
		LockDir:        lockDir,
	}, kw, vecStore, nil, logger)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	defer mgr.Stop()

	if err := mgr.BulkScan(ctx); err != nil {
		return fmt.Errorf("bulk scan: %w", err)
	}
	mgr.Drain(30 * time.Second)

	stats := mgr.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: processed=%d skipped=%d failed=%d vector_failed=%d\n",
		root, stats.Processed, stats.Skipped, stats.Failed, stats.VectorFailed)
	return nil
}
