package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHybrid(t *testing.T, dir string, excludedDirs []string) *HybridWatcher {
	t.Helper()
	opts := Options{DebounceWindow: 20 * time.Millisecond, EventBufferSize: 100}.WithDefaults()

	w, err := NewHybridWatcher(opts, excludedDirs, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, dir)
	}()
	<-started
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestHybridWatcher_New_DefaultsToFsnotify(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions(), nil, nil)
	require.NoError(t, err)
	defer w.Stop()
	assert.Equal(t, "fsnotify", w.WatcherType())
}

func TestHybridWatcher_DetectsFileCreation(t *testing.T) {
	dir := t.TempDir()
	w := startHybrid(t, dir, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.go"), []byte("package main"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, OpCreate, ev.Operation)
		assert.Equal(t, "new.go", ev.Path)
	case err := <-w.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event")
	}
}

func TestHybridWatcher_DetectsFileModification(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.go")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	w := startHybrid(t, dir, nil)
	require.NoError(t, os.WriteFile(target, []byte("v2, with more content"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, OpUpdate, ev.Operation)
		assert.Equal(t, "existing.go", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update event")
	}
}

func TestHybridWatcher_DetectsFileDeletion(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(target, []byte("bye"), 0o644))

	w := startHybrid(t, dir, nil)
	require.NoError(t, os.Remove(target))

	select {
	case ev := <-w.Events():
		assert.Equal(t, OpDelete, ev.Operation)
		assert.Equal(t, "gone.go", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestHybridWatcher_IgnoresExcludedDirectoryContents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))

	w := startHybrid(t, dir, []string{"node_modules"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "lib.js"), []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event from excluded dir, got %v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestHybridWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestHybridWatcher_DropsEventsWhenBufferFull(t *testing.T) {
	dir := t.TempDir()
	opts := Options{DebounceWindow: time.Millisecond, EventBufferSize: 1}.WithDefaults()
	w, err := NewHybridWatcher(opts, nil, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 20; i++ {
		_ = os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))+".txt"), []byte("x"), 0o644)
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	assert.Greater(t, w.DroppedEvents(), uint64(0))
}
