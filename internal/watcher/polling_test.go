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

func startPolling(t *testing.T, dir string, interval time.Duration, skip func(string) bool) *PollingWatcher {
	t.Helper()
	p := NewPollingWatcher(interval, skip)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = p.Stop()
	})

	started := make(chan struct{})
	go func() {
		close(started)
		_ = p.Start(ctx, dir)
	}()
	<-started
	time.Sleep(20 * time.Millisecond)
	return p
}

func TestPollingWatcher_DetectsFileCreation(t *testing.T) {
	dir := t.TempDir()
	p := startPolling(t, dir, 20*time.Millisecond, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hi"), 0o644))

	select {
	case ev := <-p.Events():
		assert.Equal(t, OpCreate, ev.Operation)
		assert.Equal(t, "new.txt", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for create event")
	}
}

func TestPollingWatcher_DetectsFileModification(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	p := startPolling(t, dir, 20*time.Millisecond, nil)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("version two, longer"), 0o644))

	select {
	case ev := <-p.Events():
		assert.Equal(t, OpUpdate, ev.Operation)
		assert.Equal(t, "existing.txt", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update event")
	}
}

func TestPollingWatcher_DetectsFileDeletion(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("bye"), 0o644))

	p := startPolling(t, dir, 20*time.Millisecond, nil)

	require.NoError(t, os.Remove(target))

	select {
	case ev := <-p.Events():
		assert.Equal(t, OpDelete, ev.Operation)
		assert.Equal(t, "gone.txt", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestPollingWatcher_SkipsExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))

	p := startPolling(t, dir, 20*time.Millisecond, func(relPath string) bool {
		return relPath == "node_modules"
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "lib.js"), []byte("x"), 0o644))

	select {
	case ev := <-p.Events():
		t.Fatalf("expected no event for excluded dir, got %v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPollingWatcher_StopClosesChannels(t *testing.T) {
	p := NewPollingWatcher(20*time.Millisecond, nil)
	require.NoError(t, p.Stop())

	_, ok := <-p.Events()
	assert.False(t, ok)
}
