package keyword

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func sampleDoc(path, content string) Document {
	now := time.Now().UTC().Truncate(time.Second)
	return Document{
		Path:         path,
		Filename:     path,
		Content:      content,
		Extension:    ".md",
		FileType:     "markdown",
		MimeType:     "text/markdown",
		Size:         int64(len(content)),
		ModifiedTime: now,
		CreatedTime:  now,
		ContentHash:  "deadbeef",
		IndexedTime:  now,
	}
}

func TestAdd_AndSearch_FindsDocument(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/docs/intro.md", "a guide to widgets and gadgets")))

	hits, err := idx.Search(ctx, "widgets", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/docs/intro.md", hits[0].Path)
	assert.Equal(t, ".md", hits[0].Extension)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestUpdate_ReplacesPriorDocument(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/docs/intro.md", "original content about apples")))
	require.NoError(t, idx.Update(ctx, sampleDoc("/docs/intro.md", "replaced content about oranges")))

	hits, err := idx.Search(ctx, "apples", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "oranges", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestDelete_RemovesDocumentAndReportsWhetherAnyRemoved(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/docs/a.md", "hello world")))

	removed, err := idx.Delete(ctx, "/docs/a.md")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = idx.Delete(ctx, "/docs/a.md")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSearchByFilename_MatchesOnlyFilenameField(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/docs/readme.md", "content mentions banana nowhere relevant")))

	hits, err := idx.SearchByFilename(ctx, "readme", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = idx.SearchByFilename(ctx, "banana", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_EmptyQueryReturnsEmpty(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, sampleDoc("/docs/a.md", "content")))

	hits, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStats_CountsDocumentsSizeAndFileType(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/a.md", "alpha")))
	require.NoError(t, idx.Add(ctx, sampleDoc("/b.md", "beta")))

	stats, err := idx.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 2, stats.CountByType["markdown"])
	assert.Greater(t, stats.TotalSize, int64(0))
}

func TestAllPaths_ReturnsEveryIndexedPath(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, sampleDoc("/a.md", "alpha")))
	require.NoError(t, idx.Add(ctx, sampleDoc("/b.md", "beta")))

	paths, err := idx.AllPaths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a.md", "/b.md"}, paths)
}

func TestSearch_AfterClose_ReturnsError(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "anything", 10)
	assert.Error(t, err)
}

func TestContent_NotReturnedInHit(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, sampleDoc("/a.md", "secret body text")))

	hits, err := idx.Search(ctx, "secret", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Empty(t, hits[0].Content, "content field is not stored and must not round-trip")
}
