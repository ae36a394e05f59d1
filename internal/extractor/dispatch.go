package extractor

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// officeMimeTypes maps the document extensions spec.md §6's
// supported_document_extensions names to the MIME types NewRegistry
// registers null parsers for. http.DetectContentType can't distinguish
// these from one another or from a generic zip (they share the same
// container format), so the extension is consulted as a tiebreaker once
// content sniffing has confirmed the file isn't plain text.
var officeMimeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ExtractFile implements spec.md §4.2's public contract: extract(path) →
// (text, media_type). The media type is detected from content via
// http.DetectContentType, not from the extension, except for the .ipynb
// suffix override the spec calls out explicitly and the office-format
// tiebreaker above. Any parser failure yields ("", media_type) rather than
// propagating, matching the spec's "never throws" error policy.
func ExtractFile(path string) (text string, mediaType string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}

	mediaType = detectMediaType(path, raw)

	if strings.EqualFold(filepath.Ext(path), ".ipynb") {
		mediaType = "application/x-ipynb+json"
		out, extractErr := ExtractNotebook(raw)
		if extractErr != nil {
			return "", mediaType, nil
		}
		return out, mediaType, nil
	}

	reg := defaultRegistry
	out, extractErr := reg.Extract(mediaType, raw)
	if extractErr != nil {
		return "", mediaType, nil
	}
	return out, mediaType, nil
}

// defaultRegistry is the shared dispatch table every ExtractFile call uses.
// Built once since NewRegistry only wires stateless ParserFuncs.
var defaultRegistry = NewRegistry()

func detectMediaType(path string, raw []byte) string {
	sniffed := http.DetectContentType(raw)
	if idx := strings.Index(sniffed, ";"); idx >= 0 {
		sniffed = sniffed[:idx]
	}

	ext := strings.ToLower(filepath.Ext(path))
	if sniffed == "application/octet-stream" || sniffed == "application/zip" {
		if mt, ok := officeMimeTypes[ext]; ok {
			return mt
		}
		if ext == ".pdf" || sniffed == "application/pdf" {
			return "application/pdf"
		}
	}
	if sniffed == "application/pdf" {
		return "application/pdf"
	}

	if strings.HasPrefix(sniffed, "text/") || sniffed == "" {
		return refineTextMediaType(ext, sniffed)
	}

	return sniffed
}

// refineTextMediaType narrows http.DetectContentType's generic "text/plain"
// into the language-specific MIME types the registry and classifier use,
// since content sniffing alone can't distinguish Go source from Markdown.
func refineTextMediaType(ext string, sniffed string) string {
	switch ext {
	case ".md", ".markdown", ".mdx", ".rst":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/x-yaml"
	case ".xml":
		return "application/xml"
	case ".go":
		return "text/x-go"
	case ".py":
		return "text/x-python"
	case ".rs":
		return "text/x-rust"
	}
	if sniffed == "" {
		return "text/plain"
	}
	return sniffed
}
