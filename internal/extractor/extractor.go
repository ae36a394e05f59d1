// Package extractor turns raw file bytes into indexable plain text.
//
// Dispatch is keyed by MIME type through a parser registry that holds an
// explicit nil entry for formats this module chooses not to parse (PDF,
// DOCX, XLSX, PPTX) — the registry lookup itself tells the caller "known
// format, no parser available" rather than conflating that with "unknown
// format".
package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxExtractedBytes bounds how much decoded text a single file contributes,
// so one huge log file can't blow out memory for the indexing pipeline.
const maxExtractedBytes = 1 * 1024 * 1024

// ErrNoParser is returned when the registry has an explicit null entry for
// mimeType — the format is recognized but intentionally unsupported.
var ErrNoParser = errors.New("extractor: no parser registered for this format")

// Parser turns raw bytes for a single file into plain text.
type Parser interface {
	Extract(raw []byte) (string, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(raw []byte) (string, error)

// Extract implements Parser.
func (f ParserFunc) Extract(raw []byte) (string, error) { return f(raw) }

// Registry dispatches extraction by MIME type.
type Registry struct {
	parsers map[string]Parser // nil value = recognized but unsupported
}

// NewRegistry builds the default registry: plain-text decoding for text/*
// MIME types, a notebook-aware parser for .ipynb content, and explicit null
// entries for document formats that require an external parser the spec
// places out of scope.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	textParser := ParserFunc(func(raw []byte) (string, error) {
		return DecodeText(raw)
	})

	r.Register("text/plain", textParser)
	r.Register("text/markdown", textParser)
	r.Register("text/x-go", textParser)
	r.Register("text/x-python", textParser)
	r.Register("text/x-rust", textParser)
	r.Register("application/x-yaml", textParser)
	r.Register("application/json", textParser)
	r.Register("application/xml", textParser)

	r.Register("application/x-ipynb+json", ParserFunc(ExtractNotebook))

	// Out of scope per spec: concrete format-specific parsers for these
	// binary document formats aren't implemented. The null entry lets
	// callers distinguish "no parser" from "unknown MIME type".
	for _, mt := range []string{
		"application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	} {
		r.parsers[mt] = nil
	}

	return r
}

// Register installs a parser for mimeType, overwriting any existing entry.
func (r *Registry) Register(mimeType string, p Parser) {
	r.parsers[mimeType] = p
}

// Lookup returns the parser for mimeType. ok is false when mimeType has
// never been registered at all (truly unknown format); when the format is
// known but unsupported, Lookup returns (nil, true) and callers should treat
// that as ErrNoParser.
func (r *Registry) Lookup(mimeType string) (p Parser, ok bool) {
	p, ok = r.parsers[mimeType]
	return p, ok
}

// Extract dispatches raw to the parser registered for mimeType.
func (r *Registry) Extract(mimeType string, raw []byte) (string, error) {
	p, ok := r.Lookup(mimeType)
	if !ok {
		if strings.HasPrefix(mimeType, "text/") {
			return DecodeText(raw)
		}
		return "", fmt.Errorf("extractor: unrecognized mime type %q", mimeType)
	}
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrNoParser, mimeType)
	}
	return p.Extract(raw)
}

// DecodeText decodes raw bytes to a UTF-8 string, falling back through a
// chain of legacy single-byte encodings when the content isn't valid UTF-8,
// and truncates the result to maxExtractedBytes.
func DecodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM

	if utf8.Valid(raw) {
		return truncate(string(raw)), nil
	}

	// Order matches the reference decoder's fallback chain: latin-1 before
	// cp1252. latin-1 never errors on any byte, so it wins whenever UTF-8
	// fails; cp1252 is tried only as a second opinion for inputs latin-1
	// somehow rejects.
	for _, enc := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(decoded) {
			return truncate(string(decoded)), nil
		}
	}

	// Last resort: strip invalid sequences rather than fail the whole file.
	return truncate(strings.ToValidUTF8(string(raw), "")), nil
}

const truncationMarker = "… [truncated]"

func truncate(s string) string {
	if len(s) <= maxExtractedBytes {
		return s
	}
	cut := s[:maxExtractedBytes]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && !utf8.RuneStart(cut[len(cut)-1]) {
		cut = cut[:len(cut)-1]
	}
	return cut + truncationMarker
}

// notebook mirrors the subset of the Jupyter notebook format needed to pull
// out indexable text: code and markdown cell sources, in document order.
type notebook struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string           `json:"cell_type"`
	Source   json.RawMessage  `json:"source"`
	Outputs  []notebookOutput `json:"outputs"`
}

// notebookOutput mirrors the subset of a Jupyter cell output needed to pull
// stream text (what a code cell printed) into the indexed text. Other output
// types (display_data, execute_result, error) aren't indexed.
type notebookOutput struct {
	OutputType string          `json:"output_type"`
	Text       json.RawMessage `json:"text"`
}

// ExtractNotebook concatenates the source of every code/markdown cell in a
// .ipynb file, plus the text of any stream output a code cell produced. Cell
// source and stream text may each be either a single string or a list of
// line strings per the notebook format spec; both shapes are normalized.
func ExtractNotebook(raw []byte) (string, error) {
	var nb notebook
	if err := json.Unmarshal(raw, &nb); err != nil {
		return "", fmt.Errorf("extractor: parse notebook: %w", err)
	}

	var out strings.Builder
	for _, cell := range nb.Cells {
		if cell.CellType != "code" && cell.CellType != "markdown" {
			continue
		}
		text, err := cellSourceText(cell.Source)
		if err == nil {
			out.WriteString(text)
			out.WriteString("\n\n")
		}

		for _, o := range cell.Outputs {
			if o.OutputType != "stream" || o.Text == nil {
				continue
			}
			text, err := cellSourceText(o.Text)
			if err != nil {
				continue
			}
			out.WriteString(text)
			out.WriteString("\n\n")
		}
	}
	return truncate(out.String()), nil
}

func cellSourceText(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asLines []string
	if err := json.Unmarshal(raw, &asLines); err == nil {
		return strings.Join(asLines, ""), nil
	}
	return "", fmt.Errorf("extractor: unrecognized cell source shape")
}
