// Package config loads and validates the fsindex configuration schema.
//
// Where the config file lives and how it's discovered is a CLI concern
// (out of scope per spec.md); the schema, defaults, and path-expansion
// rules defined here are the ambient stack every component depends on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete fsindex configuration (spec.md §6).
type Config struct {
	IndexDir     string `yaml:"index_dir"`
	VectorDBPath string `yaml:"vector_db_path"`

	MaxFileSize int64 `yaml:"max_file_size"`
	MaxWorkers  int   `yaml:"max_workers"`
	BatchSize   int   `yaml:"batch_size"`

	MonitoredPaths []string `yaml:"monitored_paths"`

	ExcludedExtensions []string `yaml:"excluded_extensions"`
	ExcludedDirs       []string `yaml:"excluded_dirs"`

	SupportedTextExtensions     []string `yaml:"supported_text_extensions"`
	SupportedDocumentExtensions []string `yaml:"supported_document_extensions"`

	UseProcessPool bool `yaml:"use_process_pool"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures the vector/chunk subsystem (spec.md §6).
type EmbeddingConfig struct {
	ModelName          string  `yaml:"model_name"`
	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	SimilarityTopK     int     `yaml:"similarity_top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	BatchSize          int     `yaml:"batch_size"`
	CacheModels        bool    `yaml:"cache_models"`
}

// Default returns the built-in defaults applied before a config file is
// merged in.
func Default() Config {
	return Config{
		IndexDir:     "~/.fsindex/keyword",
		VectorDBPath: "~/.fsindex/vector",
		MaxFileSize:  50 * 1024 * 1024,
		MaxWorkers:   4,
		BatchSize:    100,
		ExcludedExtensions: []string{
			".exe", ".dll", ".so", ".dylib", ".bin", ".zip", ".tar", ".gz",
		},
		ExcludedDirs: []string{
			".git", "node_modules", ".fsindex", "__pycache__", ".venv",
		},
		SupportedTextExtensions:     []string{".txt", ".md", ".rst", ".log"},
		SupportedDocumentExtensions: []string{".pdf", ".docx", ".xlsx", ".pptx", ".ipynb"},
		UseProcessPool:              false,
		Embedding: EmbeddingConfig{
			ModelName:          "static",
			ChunkSize:          1000,
			ChunkOverlap:       150,
			SimilarityTopK:     10,
			SimilarityThreshold: 0.2,
			BatchSize:          32,
			CacheModels:        true,
		},
	}
}

// Load reads and parses a YAML config file at path, merging it onto Default().
// Path fields are expanded for "~" and environment variables after merge.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg = cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system relies on.
func (c Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must be non-negative, got %d", c.MaxFileSize)
	}
	for _, p := range c.MonitoredPaths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("monitored_paths entries must be absolute, got %q", p)
		}
	}
	return nil
}

func (c Config) expandPaths() Config {
	c.IndexDir = expandPath(c.IndexDir)
	c.VectorDBPath = expandPath(c.VectorDBPath)
	for i, p := range c.MonitoredPaths {
		c.MonitoredPaths[i] = expandPath(p)
	}
	return c
}

// expandPath expands a leading "~" and $VAR / ${VAR} references in path.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
