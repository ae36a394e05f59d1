// Package chunk splits extracted document text into overlapping windows
// sized for embedding, preferring sentence boundaries over a raw character
// cut when the chunker has to choose a split point.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunk is one unit of chunked text plus its position within the source.
type Chunk struct {
	ID          string // deterministic "{path}:chunk:{i}"
	SourcePath  string
	Index       int
	Text        string
	StartOffset int // rune offset into the normalized text
	EndOffset   int // exclusive
}

// Options controls chunk sizing. Both are measured in runes of normalized
// text, matching how ChunkSize/ChunkOverlap are expressed in configuration.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultOptions mirrors the embedding config defaults (spec.md §6).
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, ChunkOverlap: 150}
}

// sentenceBoundary matches a sentence terminator immediately followed by
// whitespace, the point a chunk split should prefer over an arbitrary cut.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s]+`)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x9F]`)
var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// Normalize strips control characters and collapses redundant whitespace
// while preserving paragraph structure (single blank lines).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlChars.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split chunks normalized text from sourcePath into overlapping windows.
// An empty or whitespace-only text produces no chunks. Chunk ids are
// deterministic: "{sourcePath}:chunk:{i}", 0-indexed.
func Split(sourcePath, text string, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}

	normalized := Normalize(text)
	runes := []rune(normalized)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	idx := 0
	for start < len(runes) {
		end := start + opts.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = preferSentenceBoundary(runes, start, end)
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%s:chunk:%d", sourcePath, idx),
				SourcePath:  sourcePath,
				Index:       idx,
				Text:        chunkText,
				StartOffset: start,
				EndOffset:   end,
			})
			idx++
		}

		if end >= len(runes) {
			break
		}

		next := end - opts.ChunkOverlap
		if next <= start {
			next = end // guarantee forward progress even with large overlap
		}
		start = next
	}

	return chunks
}

// preferSentenceBoundary looks backward from the target cut point `end`
// for the nearest sentence terminator within the trailing third of the
// window, so chunks don't routinely split mid-sentence. Falls back to the
// raw target offset when no boundary is found nearby.
func preferSentenceBoundary(runes []rune, start, end int) int {
	searchFrom := start + (end-start)*2/3
	if searchFrom < start {
		searchFrom = start
	}

	window := string(runes[searchFrom:end])
	matches := sentenceBoundary.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return end
	}

	last := matches[len(matches)-1]
	// Cut right after the matched terminator+whitespace.
	boundary := searchFrom + last[1]
	if boundary <= start {
		return end
	}
	return boundary
}
