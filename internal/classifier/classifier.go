// Package classifier decides which files are eligible for indexing and
// derives the metadata record stored alongside each indexed document.
package classifier

import (
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
)

// hashChunkSize is the streaming block size used when hashing file content,
// so content_hash never requires loading a whole file into memory.
const hashChunkSize = 8 * 1024

// FileMetadata is the descriptive record produced for every indexable file
// (spec.md §3 FileMetadata model).
type FileMetadata struct {
	Path         string
	Filename     string
	Extension    string
	FileType     string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
	CreatedTime  time.Time
	ContentHash  string
	IndexedTime  time.Time
}

// Policy is the subset of configuration the classifier needs to decide
// eligibility. It is intentionally decoupled from config.Config so the
// classifier can be tested and reused without the full config schema.
type Policy struct {
	MaxFileSize                 int64
	ExcludedExtensions          []string
	ExcludedDirs                []string
	SupportedTextExtensions     []string
	SupportedDocumentExtensions []string
}

// fileTypeFor classifies an extension into a coarse-grained file_type used
// by the keyword document schema.
func fileTypeFor(ext string, policy Policy) string {
	ext = strings.ToLower(ext)
	for _, e := range policy.SupportedDocumentExtensions {
		if strings.EqualFold(e, ext) {
			return "document"
		}
	}
	switch ext {
	case ".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".rb", ".rs", ".java",
		".kt", ".c", ".h", ".cpp", ".hpp", ".cc", ".cs", ".swift", ".php",
		".scala", ".sh", ".bash", ".sql":
		return "code"
	case ".md", ".mdx", ".markdown", ".rst":
		return "markdown"
	case ".json", ".yaml", ".yml", ".toml", ".xml", ".ini", ".conf":
		return "config"
	case ".ipynb":
		return "notebook"
	}
	for _, e := range policy.SupportedTextExtensions {
		if strings.EqualFold(e, ext) {
			return "text"
		}
	}
	if ext == "" {
		return "unknown"
	}
	return "text"
}

// mimeTypeFor resolves a best-effort MIME type for ext, falling back to a
// generic octet-stream when the extension isn't registered.
func mimeTypeFor(ext string) string {
	if mt := mime.TypeByExtension(ext); mt != "" {
		if i := strings.Index(mt, ";"); i >= 0 {
			return mt[:i]
		}
		return mt
	}
	switch strings.ToLower(ext) {
	case ".go":
		return "text/x-go"
	case ".py":
		return "text/x-python"
	case ".md", ".markdown", ".mdx":
		return "text/markdown"
	case ".ipynb":
		return "application/x-ipynb+json"
	case ".rs":
		return "text/x-rust"
	case ".yaml", ".yml":
		return "application/x-yaml"
	}
	return "application/octet-stream"
}

// ShouldIndex reports whether path is eligible for indexing under policy.
// It performs only cheap, metadata-level checks (extension, directory
// component, size) — content-level decisions belong to the extractor.
func ShouldIndex(path string, size int64, policy Policy) bool {
	for _, dir := range policy.ExcludedDirs {
		if pathHasDirComponent(path, dir) {
			return false
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, excluded := range policy.ExcludedExtensions {
		if strings.EqualFold(excluded, ext) {
			return false
		}
	}

	if policy.MaxFileSize > 0 && size > policy.MaxFileSize {
		return false
	}

	return true
}

// IsExcludedDir reports whether relPath matches any of the policy's excluded
// directory patterns. Exposed separately from ShouldIndex so callers that
// only need directory-level pruning (e.g. a recursive watch deciding whether
// to descend) don't have to fabricate a file size.
func IsExcludedDir(relPath string, excludedDirs []string) bool {
	for _, dir := range excludedDirs {
		if pathHasDirComponent(relPath, dir) {
			return true
		}
	}
	return false
}

// pathHasDirComponent reports whether any path segment matches dir, or
// whether dir is itself a doublestar exclude glob matched against path.
func pathHasDirComponent(path, dir string) bool {
	if strings.ContainsAny(dir, "*?[") {
		ok, err := doublestar.Match(dir, filepath.ToSlash(path))
		return err == nil && ok
	}
	slashPath := filepath.ToSlash(path)
	for _, part := range strings.Split(slashPath, "/") {
		if part == dir {
			return true
		}
	}
	return false
}

// MetadataFor builds the FileMetadata record for path, hashing its content
// in fixed-size chunks. now is the indexed_time stamp to record (injected
// rather than read from time.Now so callers can keep results deterministic
// in tests).
func MetadataFor(path string, now time.Time) (FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return FileMetadata{}, fmt.Errorf("%s is a directory", path)
	}

	hash, err := hashFile(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("hash %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	// Most Linux filesystems don't expose a true birth time through the
	// standard library; modification time is the closest stable proxy.
	created := info.ModTime()

	return FileMetadata{
		Path:         path,
		Filename:     filepath.Base(path),
		Extension:    ext,
		FileType:     fileTypeFor(ext, Policy{}),
		MimeType:     mimeTypeFor(ext),
		Size:         info.Size(),
		ModifiedTime: info.ModTime(),
		CreatedTime:  created,
		ContentHash:  hash,
		IndexedTime:  now,
	}, nil
}

// MetadataForWithPolicy is MetadataFor but resolves file_type using policy's
// configured text/document extension lists rather than built-in defaults.
func MetadataForWithPolicy(path string, now time.Time, policy Policy) (FileMetadata, error) {
	meta, err := MetadataFor(path, now)
	if err != nil {
		return FileMetadata{}, err
	}
	meta.FileType = fileTypeFor(meta.Extension, policy)
	return meta, nil
}

// hashFile computes a content digest in fixed-size chunks so it never
// buffers a whole file. The spec allows either a cryptographic or
// non-cryptographic digest for content_hash; xxhash trades collision
// resistance fsindex doesn't need for throughput on large trees.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
