package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsindex/fsindex/internal/chunk"
	"github.com/fsindex/fsindex/internal/classifier"
	"github.com/fsindex/fsindex/internal/embed"
	"github.com/fsindex/fsindex/internal/keyword"
	"github.com/fsindex/fsindex/internal/logging"
	"github.com/fsindex/fsindex/internal/queue"
	"github.com/fsindex/fsindex/internal/vector"
)

func testPolicy() classifier.Policy {
	return classifier.Policy{
		MaxFileSize:  1024 * 1024,
		ExcludedDirs: []string{".git", "node_modules"},
	}
}

func newTestManager(t *testing.T, root string, withVector bool) (*Manager, *keyword.Index) {
	t.Helper()
	kw, err := keyword.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	var vecStore *vector.Store
	if withVector {
		embedder := embed.NewStaticEmbedder()
		vecStore, err = vector.Open(t.TempDir(), embedder, vector.DefaultConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = vecStore.Close() })
	}

	cfg := Config{
		MonitoredPaths: []string{root},
		Policy:         testPolicy(),
		ChunkOptions:   chunk.DefaultOptions(),
		MaxWorkers:     2,
		QueueCapacity:  100,
		SimilarityTopK: 10,
	}

	m := New(cfg, kw, vecStore, nil, logging.Discard())
	return m, kw
}

func TestManager_BulkScanThenProcessIndexesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("the quick brown fox"), 0o644))

	m, kw := newTestManager(t, root, false)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.BulkScan(context.Background()))

	require.Eventually(t, func() bool {
		hits, err := kw.Search(context.Background(), "fox", 10)
		return err == nil && len(hits) == 1
	}, 2*time.Second, 20*time.Millisecond)

	stats, err := kw.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestManager_BulkScanSkipsExcludedDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "config"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("ordinary content"), 0o644))

	m, kw := newTestManager(t, root, false)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.BulkScan(context.Background()))

	require.Eventually(t, func() bool {
		stats, err := kw.Stats()
		return err == nil && stats.DocumentCount == 1
	}, 2*time.Second, 20*time.Millisecond)

	hits, err := kw.Search(context.Background(), "secret", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestManager_DeleteJobRemovesFromBothIndexes(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world, this has enough text to chunk"), 0o644))

	m, kw := newTestManager(t, root, true)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.BulkScan(context.Background()))
	require.Eventually(t, func() bool {
		stats, err := kw.Stats()
		return err == nil && stats.DocumentCount == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.NoError(t, m.q.Push(queue.Job{Path: path, Operation: queue.OpDelete}, queue.PriorityImmediate))

	require.Eventually(t, func() bool {
		stats, err := kw.Stats()
		return err == nil && stats.DocumentCount == 0
	}, 2*time.Second, 20*time.Millisecond)

	vStats, err := m.vector.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, vStats.TotalChunks)
}

func TestManager_UpdateJobReplacesExistingDocument(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("the quick brown fox"), 0o644))

	m, kw := newTestManager(t, root, false)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.BulkScan(context.Background()))
	require.Eventually(t, func() bool {
		hits, err := kw.Search(context.Background(), "fox", 10)
		return err == nil && len(hits) == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	require.NoError(t, m.q.Push(queue.Job{Path: path, Operation: queue.OpUpdate}, queue.PriorityHigh))

	require.Eventually(t, func() bool {
		hits, err := kw.Search(context.Background(), "hello", 10)
		return err == nil && len(hits) == 1
	}, 2*time.Second, 20*time.Millisecond)

	hits, err := kw.Search(context.Background(), "fox", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	stats, err := kw.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount, "update must not create a second document")
}

func TestManager_StatsReflectSkippedOversizedFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), make([]byte, 2048), 0o644))

	m, _ := newTestManager(t, root, false)
	m.cfg.Policy.MaxFileSize = 1024
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NoError(t, m.BulkScan(context.Background()))

	require.Eventually(t, func() bool {
		return m.Stats().Skipped >= 1
	}, 2*time.Second, 20*time.Millisecond)
}
