package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fsindex/fsindex/internal/chunk"
	"github.com/fsindex/fsindex/internal/manager"
	"github.com/fsindex/fsindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var lockDir string
	var skipInitialScan bool

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Bulk-index then keep a directory tree current as it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return runWatch(cmd, root, lockDir, skipInitialScan)
		},
	}

	cmd.Flags().StringVar(&lockDir, "lock-dir", "", "directory for the cross-process startup lock (defaults to no locking)")
	cmd.Flags().BoolVar(&skipInitialScan, "skip-initial-scan", false, "skip the bulk scan and only watch for new changes")
	return cmd
}

func runWatch(cmd *cobra.Command, root, lockDir string, skipInitialScan bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions(), cfg.ExcludedDirs, logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	mgr := manager.New(manager.Config{
		MonitoredPaths: cfg.MonitoredPaths,
		Policy:         policyFromConfig(cfg),
		ChunkOptions:   chunk.Options{ChunkSize: cfg.Embedding.ChunkSize, ChunkOverlap: cfg.Embedding.ChunkOverlap},
		MaxWorkers:     cfg.MaxWorkers,
		QueueCapacity:  10_000,
		SimilarityTopK: cfg.Embedding.SimilarityTopK,
		LockDir:        lockDir,
	}, kw, vecStore, w, logger)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	defer mgr.Stop()

	if !skipInitialScan {
		if err := mgr.BulkScan(ctx); err != nil {
			return fmt.Errorf("bulk scan: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n", root)
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
	return nil
}
