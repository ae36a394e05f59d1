package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fsindex/fsindex/internal/classifier"
)

// HybridWatcher implements Watcher using fsnotify as the primary mechanism,
// falling back to PollingWatcher when fsnotify cannot be initialized.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	useFsnotify bool
	debouncer   *Debouncer
	excludedDirs []string
	logger      *slog.Logger

	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	rootPath string
	opts    Options

	mu             sync.RWMutex
	stopped        bool
	droppedEvents  atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a hybrid watcher. excludedDirs prunes directories
// from the recursive watch (and from the polling fallback's scan) the same
// way internal/classifier's Policy.ExcludedDirs would for indexing.
func NewHybridWatcher(opts Options, excludedDirs []string, logger *slog.Logger) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	h := &HybridWatcher{
		debouncer:    NewDebouncer(opts.DebounceWindow),
		excludedDirs: excludedDirs,
		logger:       logger,
		events:       make(chan FileEvent, opts.EventBufferSize),
		errors:       make(chan error, 10),
		stopCh:       make(chan struct{}),
		opts:         opts,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		h.useFsnotify = false
		h.pollWatcher = NewPollingWatcher(opts.PollInterval, h.shouldSkipDir)
		logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}

	return h, nil
}

// Start begins watching path recursively.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve absolute path: %w", err)
	}
	h.rootPath = absPath

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("watcher: add directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.debouncer.Add(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx, h.rootPath)
}

// handleFsnotifyEvent converts a fsnotify.Event into a FileEvent and feeds
// the debouncer. Directory events are never emitted (spec.md §4.6); a
// directory creation instead triggers descent into the new subtree.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if relPath == "." || relPath == "" || h.shouldSkipDir(dirOf(relPath)) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			if !h.shouldSkipDir(relPath) {
				_ = h.addRecursive(event.Name)
			}
			return
		}
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, Timestamp: time.Now()})
	case event.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpUpdate, Timestamp: time.Now()})
	case event.Op&fsnotify.Remove != 0:
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpDelete, Timestamp: time.Now()})
	case event.Op&fsnotify.Rename != 0:
		// fsnotify's rename carries only the source path; the destination
		// arrives (on platforms that support recursive watch) as its own
		// Create event, giving the delete(src)+create(dst) pair spec.md
		// §4.6 requires without any special-case stitching here.
		h.debouncer.Add(FileEvent{Path: relPath, Operation: OpDelete, Timestamp: time.Now()})
	default:
		// Chmod and anything else: not an index-relevant change.
	}
}

func dirOf(relPath string) string {
	dir := filepath.Dir(relPath)
	if dir == "." {
		return ""
	}
	return dir
}

// forwardDebouncedEvents drains the debouncer's output and emits individual
// events, applying drop-on-full backpressure per event (spec.md §4.6).
func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			for _, event := range batch {
				h.emitEvent(event)
			}
		}
	}
}

func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(h.rootPath, path)
		if relPath == "." {
			return h.fsWatcher.Add(path)
		}
		if h.shouldSkipDir(relPath) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) shouldSkipDir(relPath string) bool {
	if relPath == "" {
		return false
	}
	if strings.HasPrefix(relPath, ".git") {
		return true
	}
	return classifier.IsExcludedDir(relPath, h.excludedDirs)
}

func (h *HybridWatcher) emitEvent(event FileEvent) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case h.events <- event:
	default:
		count := h.droppedEvents.Add(1)
		h.logger.Warn("event buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
			slog.Uint64("total_dropped", count),
		)
	}
}

// DroppedEvents returns the number of events dropped due to buffer overflow.
func (h *HybridWatcher) DroppedEvents() uint64 {
	return h.droppedEvents.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()

	if h.useFsnotify && h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of individual file events.
func (h *HybridWatcher) Events() <-chan FileEvent { return h.events }

// Errors returns the channel of non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error { return h.errors }

// WatcherType reports which underlying mechanism is active.
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
