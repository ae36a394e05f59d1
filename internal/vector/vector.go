// Package vector implements the two stores behind the vector/chunk index
// (spec.md §4.5): an HNSW embedding store for nearest-neighbor search, and a
// SQLite chunk-metadata table keyed by chunk_id with a source_path index.
package vector

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"
)

// Embedder turns text into a fixed-dimensional vector. Implementations live
// in internal/embed; this interface is declared here (rather than imported)
// so the vector store has no dependency on embedder backend choices.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}

// Config configures the embedding store's ANN graph.
type Config struct {
	Metric   string // "cos" or "l2"
	M        int
	EfSearch int
}

// DefaultConfig mirrors coder/hnsw's recommended defaults.
func DefaultConfig() Config {
	return Config{Metric: "cos", M: 16, EfSearch: 20}
}

// ChunkRecord is a row of the chunk_metadata table (spec.md §4.5).
type ChunkRecord struct {
	ChunkID        string
	SourcePath     string
	ChunkIndex     int
	StartChar      int
	EndChar        int
	TextPreview    string
	FileMetadata   string // serialized snapshot, opaque to this package
	IndexedTime    time.Time
	EmbeddingModel string
}

// Result is a similarity_search hit, enriched with chunk metadata.
type Result struct {
	ChunkRecord
	Score float64
}

// Stats summarizes the vector index for spec.md §4.5's stats() operation.
type Stats struct {
	TotalChunks     int
	UniqueSources   int
	EmbeddingModel  string
	FileTypeCounts  map[string]int
}

// ChunkInput is what callers provide to AddChunks: text to embed plus the
// metadata snapshot to persist alongside it.
type ChunkInput struct {
	ChunkID      string
	SourcePath   string
	ChunkIndex   int
	StartChar    int
	EndChar      int
	Text         string
	FileMetadata string
	FileType     string
}

type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// Store composes the embedding (HNSW) and chunk-metadata (SQLite) stores
// under a single directory, matching spec.md §6's persisted layout:
// <dir>/vector_index/ holds the graph, <dir>/metadata.db holds the table.
type Store struct {
	mu     sync.RWMutex
	dir    string
	graph  *hnsw.Graph[uint64]
	idMap  map[string]uint64
	keyMap map[uint64]string
	nextKey uint64
	config Config

	db       *sql.DB
	embedder Embedder
	closed   bool
}

// Open creates or loads the vector store rooted at dir.
func Open(dir string, embedder Embedder, cfg Config) (*Store, error) {
	if cfg.Metric == "" {
		cfg = DefaultConfig()
	}

	graphDir := filepath.Join(dir, "vector_index")
	if err := os.MkdirAll(graphDir, 0o755); err != nil {
		return nil, fmt.Errorf("vector: create index directory: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &Store{
		dir:      dir,
		graph:    graph,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		config:   cfg,
		embedder: embedder,
	}

	graphPath := filepath.Join(graphDir, "graph.hnsw")
	if _, err := os.Stat(graphPath); err == nil {
		if err := s.loadGraph(graphPath); err != nil {
			return nil, fmt.Errorf("vector: load graph: %w", err)
		}
	}

	dbPath := filepath.Join(dir, "metadata.db")
	db, err := openMetadataDB(dbPath)
	if err != nil {
		return nil, err
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func openMetadataDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vector: open metadata db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("vector: set pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunk_metadata (
		chunk_id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_char INTEGER NOT NULL,
		end_char INTEGER NOT NULL,
		text_preview TEXT NOT NULL,
		file_metadata TEXT NOT NULL,
		indexed_time TEXT NOT NULL,
		embedding_model TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_metadata_source_path
		ON chunk_metadata(source_path);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("vector: init schema: %w", err)
	}
	return nil
}

// AddChunks embeds each input's text, then inserts into both the embedding
// store and the chunk-metadata table, then persists. Embedding happens
// before any mutation so a failure partway through leaves no chunk visible
// (spec.md §4.5's per-call atomicity).
func (s *Store) AddChunks(ctx context.Context, inputs []ChunkInput, now time.Time) error {
	if len(inputs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector: store is closed")
	}

	vectors := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec, err := s.embedder.Embed(ctx, in.Text)
		if err != nil {
			return fmt.Errorf("vector: embed chunk %s: %w", in.ChunkID, err)
		}
		if len(vec) != s.embedder.Dimensions() {
			return fmt.Errorf("vector: embedder returned %d dims, expected %d", len(vec), s.embedder.Dimensions())
		}
		vectors[i] = vec
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vector: begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_metadata
			(chunk_id, source_path, chunk_index, start_char, end_char, text_preview, file_metadata, indexed_time, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			source_path=excluded.source_path, chunk_index=excluded.chunk_index,
			start_char=excluded.start_char, end_char=excluded.end_char,
			text_preview=excluded.text_preview, file_metadata=excluded.file_metadata,
			indexed_time=excluded.indexed_time, embedding_model=excluded.embedding_model
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("vector: prepare insert: %w", err)
	}

	for i, in := range inputs {
		if _, existing := s.idMap[in.ChunkID]; existing {
			key := s.idMap[in.ChunkID]
			delete(s.keyMap, key)
			delete(s.idMap, in.ChunkID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[in.ChunkID] = key
		s.keyMap[key] = in.ChunkID

		if _, err := stmt.ExecContext(ctx,
			in.ChunkID, in.SourcePath, in.ChunkIndex, in.StartChar, in.EndChar,
			textPreview(in.Text), in.FileMetadata, now.UTC().Format(time.RFC3339), s.embedder.ModelName(),
		); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("vector: insert chunk metadata %s: %w", in.ChunkID, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vector: commit chunk metadata: %w", err)
	}

	return s.persistGraph()
}

func textPreview(text string) string {
	const previewLen = 200
	runes := []rune(text)
	if len(runes) <= previewLen {
		return text
	}
	return string(runes[:previewLen]) + "..."
}

// DeleteBySource deletes every row whose source_path equals path from both
// stores, then persists. Returns true whenever the call completes, even if
// zero rows matched (spec.md §4.5).
func (s *Store) DeleteBySource(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("vector: store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunk_metadata WHERE source_path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("vector: query chunks for %s: %w", path, err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return false, fmt.Errorf("vector: scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	_ = rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_metadata WHERE source_path = ?`, path); err != nil {
		return false, fmt.Errorf("vector: delete chunk metadata for %s: %w", path, err)
	}

	for _, id := range chunkIDs {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	if err := s.persistGraph(); err != nil {
		return false, err
	}
	return true, nil
}

// SimilaritySearch embeds query, retrieves the top_k nearest chunks, filters
// by score >= threshold, and enriches results with chunk metadata. Ties are
// broken by chunk id ascending.
func (s *Store) SimilaritySearch(ctx context.Context, query string, topK int, threshold float64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector: store is closed")
	}
	if s.graph.Len() == 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	if s.config.Metric == "cos" {
		normalizeInPlace(vec)
	}

	nodes := s.graph.Search(vec, topK)

	type scored struct {
		chunkID string
		score   float64
	}
	candidates := make([]scored, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := s.graph.Distance(vec, node.Value)
		score := distanceToScore(distance, s.config.Metric)
		if score < threshold {
			continue
		}
		candidates = append(candidates, scored{chunkID: id, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		rec, err := s.fetchChunkRecord(ctx, c.chunkID)
		if err != nil {
			continue
		}
		results = append(results, Result{ChunkRecord: rec, Score: c.score})
	}
	return results, nil
}

func (s *Store) fetchChunkRecord(ctx context.Context, chunkID string) (ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, source_path, chunk_index, start_char, end_char, text_preview, file_metadata, indexed_time, embedding_model
		FROM chunk_metadata WHERE chunk_id = ?`, chunkID)

	var rec ChunkRecord
	var indexedTime string
	if err := row.Scan(&rec.ChunkID, &rec.SourcePath, &rec.ChunkIndex, &rec.StartChar, &rec.EndChar,
		&rec.TextPreview, &rec.FileMetadata, &indexedTime, &rec.EmbeddingModel); err != nil {
		return ChunkRecord{}, fmt.Errorf("vector: fetch chunk record %s: %w", chunkID, err)
	}
	if t, err := time.Parse(time.RFC3339, indexedTime); err == nil {
		rec.IndexedTime = t
	}
	return rec, nil
}

// Stats returns total chunks, unique source paths, the embedding model id,
// and a file-type histogram (derived from each row's file_metadata JSON).
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, fmt.Errorf("vector: store is closed")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_metadata`).Scan(&total); err != nil {
		return Stats{}, fmt.Errorf("vector: count chunks: %w", err)
	}

	var uniqueSources int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT source_path) FROM chunk_metadata`).Scan(&uniqueSources); err != nil {
		return Stats{}, fmt.Errorf("vector: count unique sources: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file_metadata FROM chunk_metadata`)
	if err != nil {
		return Stats{}, fmt.Errorf("vector: scan file metadata: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var snapshot struct {
			FileType string `json:"file_type"`
		}
		if json.Unmarshal([]byte(raw), &snapshot) == nil && snapshot.FileType != "" {
			counts[snapshot.FileType]++
		}
	}

	model := ""
	if s.embedder != nil {
		model = s.embedder.ModelName()
	}

	return Stats{
		TotalChunks:    total,
		UniqueSources:  uniqueSources,
		EmbeddingModel: model,
		FileTypeCounts: counts,
	}, nil
}

func (s *Store) persistGraph() error {
	graphDir := filepath.Join(s.dir, "vector_index")
	graphPath := filepath.Join(graphDir, "graph.hnsw")

	tmpPath := graphPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("vector: create graph temp file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vector: export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vector: close graph temp file: %w", err)
	}
	if err := os.Rename(tmpPath, graphPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vector: rename graph file: %w", err)
	}

	return s.saveMetadata(graphPath + ".meta")
}

func (s *Store) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("vector: create metadata temp file: %w", err)
	}
	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vector: encode id mapping: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("vector: close metadata temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func (s *Store) loadGraph(graphPath string) error {
	metaPath := graphPath + ".meta"
	if _, err := os.Stat(metaPath); err == nil {
		f, err := os.Open(metaPath)
		if err != nil {
			return fmt.Errorf("vector: open id mapping: %w", err)
		}
		defer func() { _ = f.Close() }()

		var meta hnswMetadata
		if err := gob.NewDecoder(f).Decode(&meta); err != nil {
			return fmt.Errorf("vector: decode id mapping: %w", err)
		}
		s.idMap = meta.IDMap
		s.nextKey = meta.NextKey
		s.keyMap = make(map[uint64]string, len(meta.IDMap))
		for id, key := range meta.IDMap {
			s.keyMap[key] = id
		}
	}

	f, err := os.Open(graphPath)
	if err != nil {
		return fmt.Errorf("vector: open graph file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return s.graph.Import(bufio.NewReader(f))
}

// Close releases the SQLite connection. The HNSW graph needs no explicit
// cleanup.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default:
		return 1.0 - float64(distance)/2.0
	}
}
