package embed

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// StaticEmbedder generates embeddings with a hashed bag-of-features
// approach: no network, no model download, deterministic and fast, at the
// cost of semantic quality compared to a learned model. It exists so a
// vector index can come up and stay useful even when no real embedding
// model is configured or reachable (spec.md §7's "vector subsystem
// unavailable" disposition still needs something to embed against once
// the operator supplies one later).
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// proseStopWords holds the highest-frequency function words that would
// otherwise swamp every document's feature vector with the same signal.
// Unlike a code-search tool, fsindex chunks indexed text drawn from prose
// (markdown, notes) as often as source, so this list favors English
// function words over programming keywords.
var proseStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "this": true, "that": true, "it": true, "as": true, "by": true,
}

const (
	// termWeight scales a token's log-dampened in-document frequency.
	// bigramWeight scales adjacent-token-pair features, which carry the
	// chunk's local word order rather than just its vocabulary.
	termWeight   = 1.0
	bigramWeight = 0.4
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embed: embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector hashes each token and adjacent token-pair into a fixed
// StaticDimensions-wide vector. Token weight uses log1p of the in-document
// term count (a cheap stand-in for the sublinear TF scaling a real term
// weighting scheme applies) so a word repeated 20 times in a chunk doesn't
// dominate a word that appears twice as much as it "should" linearly.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	tokens := filterStopWords(tokenize(text))

	termCounts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		termCounts[t]++
	}
	for term, count := range termCounts {
		weight := termWeight * float32(1+math.Log1p(float64(count-1)))
		vector[hashToIndex(term, StaticDimensions)] += weight
	}

	for i := 0; i+1 < len(tokens); i++ {
		bigram := tokens[i] + "_" + tokens[i+1]
		vector[hashToIndex(bigram, StaticDimensions)] += bigramWeight
	}

	return vector
}

// tokenize splits text into lowercase alphanumeric tokens, further breaking
// code identifiers on underscore and camelCase boundaries. Identifier
// awareness earns its keep here because fsindex chunks source files
// (.go, .py, .rs, …) under the same pipeline as prose documents.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !proseStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// hashToIndex feature-hashes s into [0, size) with xxhash, the same
// non-cryptographic digest internal/classifier uses for content hashing —
// reusing it here instead of reaching for hash/fnv keeps the module down to
// one hashing dependency instead of two.
func hashToIndex(s string, size int) int {
	return int(xxhash.Sum64String(s) % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embed: embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed: text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static" }

// Available reports whether the embedder is ready (always true unless closed).
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
