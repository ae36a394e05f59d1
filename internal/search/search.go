// Package search implements the hybrid search surface (spec.md §4.8): a
// single entry point that can rank by keyword relevance, semantic
// similarity, or a weighted combination of both.
package search

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsindex/fsindex/internal/keyword"
	"github.com/fsindex/fsindex/internal/vector"
)

// Mode selects which backend(s) search consults.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// defaultKeywordWeight and defaultSemanticWeight are the hybrid fallback
// weights when the caller passes w_k = w_s = 0 (spec.md §4.8).
const (
	defaultKeywordWeight  = 0.6
	defaultSemanticWeight = 0.4
)

// fetchMultiplier is how much deeper than limit each backend is queried
// before merging, so the merge has enough candidates to rank correctly.
const fetchMultiplier = 2

// Result is a SearchResult record (spec.md §4.8): every field a caller might
// need, with keyword- and semantic-specific fields left at their zero value
// when that backend didn't contribute to a given hit.
type Result struct {
	Path         string
	Filename     string
	FileType     string
	Extension    string
	Size         int64
	ModifiedTime time.Time

	HasKeyword   bool
	KeywordScore float64
	KeywordRank  int

	HasSemantic   bool
	SemanticScore float64
	SemanticRank  int
	ChunkText     string
	ChunkID       string

	Combined   float64
	SearchType string
}

// Searcher answers search and search_by_filename against a keyword index
// and an optional vector store. A nil vector store runs every mode except
// keyword in keyword-only fallback.
type Searcher struct {
	kw                  *keyword.Index
	vec                 *vector.Store
	similarityThreshold float64
}

// New constructs a Searcher. vec may be nil.
func New(kw *keyword.Index, vec *vector.Store, similarityThreshold float64) *Searcher {
	return &Searcher{kw: kw, vec: vec, similarityThreshold: similarityThreshold}
}

// Search dispatches to the requested mode (spec.md §4.8). wk and ws are only
// consulted in hybrid mode.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, limit int, wk, ws float64) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	switch mode {
	case ModeKeyword:
		return s.keywordSearch(ctx, query, limit)
	case ModeSemantic:
		if s.vec == nil {
			return s.keywordSearch(ctx, query, limit)
		}
		return s.semanticSearch(ctx, query, limit)
	case ModeHybrid:
		if s.vec == nil {
			return s.keywordSearch(ctx, query, limit)
		}
		return s.hybridSearch(ctx, query, limit, wk, ws)
	default:
		return nil, fmt.Errorf("search: unknown mode %q", mode)
	}
}

// SearchByFilename matches only the filename field (spec.md §4.8).
func (s *Searcher) SearchByFilename(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	hits, err := s.kw.SearchByFilename(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: filename search: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = resultFromKeywordHit(h, i+1)
		results[i].SearchType = "filename"
		results[i].Combined = h.Score
	}
	return results, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	hits, err := s.kw.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: keyword search: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		r := resultFromKeywordHit(h, i+1)
		r.SearchType = "keyword"
		r.Combined = r.KeywordScore
		results[i] = r
	}
	return results, nil
}

func (s *Searcher) semanticSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	hits, err := s.vec.SimilaritySearch(ctx, query, limit, s.similarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("search: semantic search: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = resultFromSemanticHit(h, i+1)
		results[i].SearchType = "semantic"
		results[i].Combined = results[i].SemanticScore
	}
	return results, nil
}

// hybridSearch implements spec.md §4.8's exact merge: normalize weights,
// fetch 2·limit from each backend, merge by path with the keyword record as
// base and semantic fields overlaid, compute the weighted combined score,
// sort by combined descending then path ascending.
func (s *Searcher) hybridSearch(ctx context.Context, query string, limit int, wk, ws float64) ([]Result, error) {
	wk, ws = normalizeWeights(wk, ws)
	fetchLimit := limit * fetchMultiplier

	kwHits, err := s.kw.Search(ctx, query, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("search: hybrid keyword leg: %w", err)
	}

	var semHits []vector.Result
	if s.vec != nil {
		semHits, err = s.vec.SimilaritySearch(ctx, query, fetchLimit, s.similarityThreshold)
		if err != nil {
			return nil, fmt.Errorf("search: hybrid semantic leg: %w", err)
		}
	}

	return mergeHybrid(kwHits, semHits, wk, ws, limit), nil
}

// mergeHybrid is the pure merge step of hybridSearch, split out so the
// weighted-sum arithmetic (spec.md §8 scenario 6) is testable without a live
// keyword index or vector store.
func mergeHybrid(kwHits []keyword.Hit, semHits []vector.Result, wk, ws float64, limit int) []Result {
	merged := make(map[string]*Result, len(kwHits)+len(semHits))
	order := make([]string, 0, len(kwHits)+len(semHits))

	for i, h := range kwHits {
		r := resultFromKeywordHit(h, i+1)
		merged[r.Path] = &r
		order = append(order, r.Path)
	}
	for i, h := range semHits {
		if existing, ok := merged[h.SourcePath]; ok {
			if !existing.HasSemantic {
				overlaySemanticFields(existing, h, i+1)
			}
			continue
		}
		r := resultFromSemanticHit(h, i+1)
		merged[r.Path] = &r
		order = append(order, r.Path)
	}

	results := make([]Result, 0, len(order))
	for _, path := range order {
		r := merged[path]
		r.Combined = wk*r.KeywordScore + ws*r.SemanticScore
		r.SearchType = "hybrid"
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].Path < results[j].Path
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalizeWeights scales wk and ws to sum to 1, falling back to the spec's
// default split when both are zero.
func normalizeWeights(wk, ws float64) (float64, float64) {
	if wk == 0 && ws == 0 {
		return defaultKeywordWeight, defaultSemanticWeight
	}
	sum := wk + ws
	return wk / sum, ws / sum
}

func resultFromKeywordHit(h keyword.Hit, rank int) Result {
	return Result{
		Path:         h.Path,
		Filename:     h.Filename,
		FileType:     h.FileType,
		Extension:    h.Extension,
		Size:         h.Size,
		ModifiedTime: h.ModifiedTime,
		HasKeyword:   true,
		KeywordScore: h.Score,
		KeywordRank:  rank,
	}
}

func resultFromSemanticHit(h vector.Result, rank int) Result {
	return Result{
		Path:          h.SourcePath,
		Filename:      filepath.Base(h.SourcePath),
		Extension:     filepath.Ext(h.SourcePath),
		HasSemantic:   true,
		SemanticScore: h.Score,
		SemanticRank:  rank,
		ChunkText:     h.TextPreview,
		ChunkID:       h.ChunkID,
	}
}

func overlaySemanticFields(r *Result, h vector.Result, rank int) {
	r.HasSemantic = true
	r.SemanticScore = h.Score
	r.SemanticRank = rank
	r.ChunkText = h.TextPreview
	r.ChunkID = h.ChunkID
}
