// Package keyword implements the inverted keyword index (spec.md §4.4):
// an upsert-by-path document store searchable over content and filename.
package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// Document is the KeywordDocument record (spec.md §3).
type Document struct {
	Path         string
	Filename     string
	Content      string
	Extension    string
	FileType     string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
	CreatedTime  time.Time
	ContentHash  string
	IndexedTime  time.Time
}

// Hit is a search result: every stored field of the matched document plus
// its relevance score.
type Hit struct {
	Document
	Score float64
}

// Stats summarizes index contents for spec.md §4.4's stats() operation.
type Stats struct {
	DocumentCount  int
	TotalSize      int64
	CountByType    map[string]int
	IndexDirectory string
}

// storedDoc is the shape persisted into Bleve. content is deliberately
// indexed but not stored — full text is retrievable only by re-reading the
// source file, matching spec.md §3's "Stored? no" for content.
type storedDoc struct {
	Path         string    `json:"path"`
	Filename     string    `json:"filename"`
	Content      string    `json:"content"`
	Extension    string    `json:"extension"`
	FileType     string    `json:"file_type"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
	CreatedTime  time.Time `json:"created_time"`
	ContentHash  string    `json:"content_hash"`
	IndexedTime  time.Time `json:"indexed_time"`
}

// Index wraps a Bleve index implementing the KeywordDocument operations.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Open creates or opens the keyword index rooted at path. An empty path
// opens an in-memory index, useful for tests.
func Open(path string) (*Index, error) {
	idxMapping, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("keyword: build mapping: %w", err)
	}

	var bi bleve.Index
	if path == "" {
		bi, err = bleve.NewMemOnly(idxMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("keyword: create index directory: %w", err)
		}
		if validateErr := validateIntegrity(path); validateErr != nil {
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword: index corrupted at %s, cannot remove: %w (original: %v)", path, removeErr, validateErr)
			}
		}
		bi, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			bi, err = bleve.New(path, idxMapping)
		} else if err != nil && isCorruptionError(err) {
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword: index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			bi, err = bleve.New(path, idxMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("keyword: open/create index: %w", err)
	}

	return &Index{index: bi, path: path}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	content := bleve.NewTextFieldMapping()
	content.Store = false
	content.IncludeInAll = false

	filename := bleve.NewTextFieldMapping()
	filename.Store = true

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	keywordField.Store = true

	size := bleve.NewNumericFieldMapping()
	size.Store = true

	dt := bleve.NewDateTimeFieldMapping()
	dt.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", keywordField)
	doc.AddFieldMappingsAt("filename", filename)
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("extension", keywordField)
	doc.AddFieldMappingsAt("file_type", keywordField)
	doc.AddFieldMappingsAt("mime_type", keywordField)
	doc.AddFieldMappingsAt("content_hash", keywordField)
	doc.AddFieldMappingsAt("size", size)
	doc.AddFieldMappingsAt("modified_time", dt)
	doc.AddFieldMappingsAt("created_time", dt)
	doc.AddFieldMappingsAt("indexed_time", dt)

	im.DefaultMapping = doc
	return im, nil
}

// validateIntegrity checks that an on-disk index's metadata file is present
// and parseable before opening it, so a half-written index from a crashed
// process is detected and rebuilt rather than silently misbehaving.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func toStoredDoc(d Document) storedDoc {
	return storedDoc{
		Path:         d.Path,
		Filename:     d.Filename,
		Content:      d.Content,
		Extension:    d.Extension,
		FileType:     d.FileType,
		MimeType:     d.MimeType,
		Size:         d.Size,
		ModifiedTime: d.ModifiedTime.UTC(),
		CreatedTime:  d.CreatedTime.UTC(),
		ContentHash:  d.ContentHash,
		IndexedTime:  d.IndexedTime.UTC(),
	}
}

// Add writes a new document. If a document with the same path already
// exists, behavior is undefined at this entry point per spec.md §4.4 —
// callers that don't know whether path is already indexed must use Update.
func (idx *Index) Add(ctx context.Context, d Document) error {
	return idx.upsert(ctx, d)
}

// Update upserts by path, atomically replacing any prior document with the
// same path (Bleve's Index() call on an existing doc ID is itself an
// atomic replace at the segment level).
func (idx *Index) Update(ctx context.Context, d Document) error {
	return idx.upsert(ctx, d)
}

func (idx *Index) upsert(_ context.Context, d Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("keyword: index is closed")
	}
	if err := idx.index.Index(d.Path, toStoredDoc(d)); err != nil {
		return fmt.Errorf("keyword: index document %s: %w", d.Path, err)
	}
	return nil
}

// Delete removes the document with the given path, reporting whether any
// document was removed.
func (idx *Index) Delete(_ context.Context, path string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return false, fmt.Errorf("keyword: index is closed")
	}

	existing, err := idx.index.Document(path)
	if err != nil {
		return false, fmt.Errorf("keyword: check existence of %s: %w", path, err)
	}
	if existing == nil {
		return false, nil
	}
	if err := idx.index.Delete(path); err != nil {
		return false, fmt.Errorf("keyword: delete %s: %w", path, err)
	}
	return true, nil
}

// Search runs query against the content field, returning up to limit hits
// sorted by descending relevance score.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	return idx.search(ctx, query, "content", limit)
}

// SearchByFilename runs query against the filename field only.
func (idx *Index) SearchByFilename(ctx context.Context, query string, limit int) ([]Hit, error) {
	return idx.search(ctx, query, "filename", limit)
}

func (idx *Index) search(ctx context.Context, query, field string, limit int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("keyword: index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField(field)

	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		doc, err := hitToDocument(h)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Document: doc, Score: h.Score})
	}
	return hits, nil
}

func hitToDocument(h *search.DocumentMatch) (Document, error) {
	get := func(field string) string {
		if v, ok := h.Fields[field].(string); ok {
			return v
		}
		return ""
	}
	getFloat := func(field string) float64 {
		if v, ok := h.Fields[field].(float64); ok {
			return v
		}
		return 0
	}
	getTime := func(field string) time.Time {
		v := get(field)
		if v == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	}

	return Document{
		Path:         h.ID,
		Filename:     get("filename"),
		Extension:    get("extension"),
		FileType:     get("file_type"),
		MimeType:     get("mime_type"),
		Size:         int64(getFloat("size")),
		ModifiedTime: getTime("modified_time"),
		CreatedTime:  getTime("created_time"),
		ContentHash:  get("content_hash"),
		IndexedTime:  getTime("indexed_time"),
	}, nil
}

// Stats returns document count, summed size, and a file_type histogram.
func (idx *Index) Stats() (Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return Stats{}, fmt.Errorf("keyword: index is closed")
	}

	docCount, err := idx.index.DocCount()
	if err != nil {
		return Stats{}, fmt.Errorf("keyword: doc count: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{"size", "file_type"}

	result, err := idx.index.Search(req)
	if err != nil {
		return Stats{}, fmt.Errorf("keyword: stats scan: %w", err)
	}

	stats := Stats{DocumentCount: int(docCount), CountByType: make(map[string]int), IndexDirectory: idx.path}
	for _, h := range result.Hits {
		if sz, ok := h.Fields["size"].(float64); ok {
			stats.TotalSize += int64(sz)
		}
		if ft, ok := h.Fields["file_type"].(string); ok {
			stats.CountByType[ft]++
		}
	}
	return stats, nil
}

// AllPaths returns every indexed document path, used for consistency
// checking against the vector index's source paths.
func (idx *Index) AllPaths() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("keyword: index is closed")
	}

	docCount, err := idx.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword: doc count: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword: scan for paths: %w", err)
	}

	paths := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		paths[i] = h.ID
	}
	return paths, nil
}

// Optimize does no compaction of its own: it only reports an error when the
// index is closed. Bleve's scorch backend merges segments on its own
// background schedule and exposes no synchronous "force merge" call, so
// this keeps the operation in the public contract as a no-op rather than
// faking work the backend doesn't offer.
func (idx *Index) Optimize() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("keyword: index is closed")
	}
	return nil
}

// Close closes the underlying index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.index.Close()
}
