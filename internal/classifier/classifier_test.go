package classifier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		MaxFileSize:                 1024,
		ExcludedExtensions:          []string{".exe", ".bin"},
		ExcludedDirs:                []string{".git", "node_modules"},
		SupportedTextExtensions:     []string{".txt", ".log"},
		SupportedDocumentExtensions: []string{".pdf", ".docx"},
	}
}

func TestShouldIndex_RejectsExcludedDir(t *testing.T) {
	assert.False(t, ShouldIndex("project/node_modules/lib/index.js", 10, testPolicy()))
	assert.True(t, ShouldIndex("project/src/index.js", 10, testPolicy()))
}

func TestShouldIndex_RejectsExcludedExtension(t *testing.T) {
	assert.False(t, ShouldIndex("project/bin/tool.exe", 10, testPolicy()))
}

func TestShouldIndex_RejectsOversizeFile(t *testing.T) {
	assert.False(t, ShouldIndex("project/data.txt", 2048, testPolicy()))
	assert.True(t, ShouldIndex("project/data.txt", 100, testPolicy()))
}

func TestShouldIndex_GlobExcludeDir(t *testing.T) {
	policy := testPolicy()
	policy.ExcludedDirs = []string{"**/vendor/**"}
	assert.False(t, ShouldIndex("project/vendor/pkg/file.go", 10, policy))
	assert.True(t, ShouldIndex("project/src/file.go", 10, policy))
}

func TestMetadataFor_PopulatesAllFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello world"), 0o644))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	meta, err := MetadataFor(path, now)
	require.NoError(t, err)

	assert.Equal(t, path, meta.Path)
	assert.Equal(t, "notes.md", meta.Filename)
	assert.Equal(t, ".md", meta.Extension)
	assert.Equal(t, "markdown", meta.FileType)
	assert.Equal(t, "text/markdown", meta.MimeType)
	assert.Equal(t, int64(len("# hello world")), meta.Size)
	assert.Equal(t, now, meta.IndexedTime)
	assert.NotEmpty(t, meta.ContentHash)
}

func TestMetadataFor_HashIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("same content"), 0o644))

	now := time.Now()
	m1, err := MetadataFor(path, now)
	require.NoError(t, err)
	m2, err := MetadataFor(path, now)
	require.NoError(t, err)

	assert.Equal(t, m1.ContentHash, m2.ContentHash)
}

func TestMetadataFor_DifferentContentDifferentHash(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("content a"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("content b"), 0o644))

	now := time.Now()
	mA, err := MetadataFor(pathA, now)
	require.NoError(t, err)
	mB, err := MetadataFor(pathB, now)
	require.NoError(t, err)

	assert.NotEqual(t, mA.ContentHash, mB.ContentHash)
}

func TestMetadataFor_LargeFileHashesInChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "large.bin")
	data := make([]byte, hashChunkSize*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	meta, err := MetadataFor(path, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), meta.Size)
	assert.Len(t, meta.ContentHash, 16) // xxhash64 hex digest
}

func TestMetadataFor_RejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := MetadataFor(dir, time.Now())
	assert.Error(t, err)
}

func TestMetadataForWithPolicy_UsesPolicyExtensionLists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	meta, err := MetadataForWithPolicy(path, time.Now(), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, "document", meta.FileType)
}

func TestFileTypeFor_KnownKinds(t *testing.T) {
	policy := testPolicy()
	assert.Equal(t, "code", fileTypeFor(".go", policy))
	assert.Equal(t, "markdown", fileTypeFor(".md", policy))
	assert.Equal(t, "config", fileTypeFor(".yaml", policy))
	assert.Equal(t, "notebook", fileTypeFor(".ipynb", policy))
	assert.Equal(t, "document", fileTypeFor(".pdf", policy))
	assert.Equal(t, "text", fileTypeFor(".txt", policy))
	assert.Equal(t, "unknown", fileTypeFor("", policy))
}
