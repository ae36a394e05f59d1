package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fsindex/fsindex/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		mode         string
		limit        int
		keywordWeight  float64
		semanticWeight float64
		byFilename   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a previously built index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, mode, limit, keywordWeight, semanticWeight, byFilename)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "search mode: keyword, semantic, or hybrid")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().Float64Var(&keywordWeight, "keyword-weight", 0, "hybrid keyword weight (weights are scaled to sum to 1; 0.6/0.4 when both are 0)")
	cmd.Flags().Float64Var(&semanticWeight, "semantic-weight", 0, "hybrid semantic weight (weights are scaled to sum to 1; 0.6/0.4 when both are 0)")
	cmd.Flags().BoolVar(&byFilename, "by-filename", false, "match only the filename field, ignoring --mode")

	return cmd
}

func runSearch(cmd *cobra.Command, query, mode string, limit int, wk, ws float64, byFilename bool) error {
	ctx := cmd.Context()
	logger := defaultLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	kw, vecStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = kw.Close() }()
	if vecStore != nil {
		defer func() { _ = vecStore.Close() }()
	}

	searcher := search.New(kw, vecStore, cfg.Embedding.SimilarityThreshold)

	var results []search.Result
	if byFilename {
		results, err = searcher.SearchByFilename(ctx, query, limit)
	} else {
		results, err = searcher.Search(ctx, query, search.Mode(mode), limit, wk, ws)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "no results for %q\n", query)
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score: %.3f, type: %s)\n", i+1, r.Path, r.Combined, r.SearchType)
		if r.ChunkText != "" {
			fmt.Fprintf(out, "   %s\n", firstLine(r.ChunkText))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
