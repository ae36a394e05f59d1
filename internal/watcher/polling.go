package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher watches a directory tree by periodically rescanning it.
// Used when fsnotify cannot be initialized (e.g. inotify instance limits).
type PollingWatcher struct {
	interval  time.Duration
	shouldSkipDir func(relPath string) bool

	mu        sync.Mutex
	fileState map[string]fileSnapshot
	rootPath  string
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	stopped   bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher with the given scan interval.
// shouldSkipDir, if non-nil, prunes directories from the scan (and from
// emitted events) the same way the fsnotify path does.
func NewPollingWatcher(interval time.Duration, shouldSkipDir func(relPath string) bool) *PollingWatcher {
	return &PollingWatcher{
		interval:      interval,
		shouldSkipDir: shouldSkipDir,
		fileState:     make(map[string]fileSnapshot),
		events:        make(chan FileEvent, 100),
		errors:        make(chan error, 10),
		stopCh:        make(chan struct{}),
	}
}

// Start begins polling path on a ticker until ctx is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve absolute path: %w", err)
	}
	p.rootPath = absPath

	if err := p.scan(); err != nil {
		return fmt.Errorf("watcher: initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events (directories are never emitted).
func (p *PollingWatcher) Events() <-chan FileEvent { return p.events }

// Errors returns the channel of non-fatal scan errors.
func (p *PollingWatcher) Errors() <-chan error { return p.errors }

func (p *PollingWatcher) walk(visit func(relPath string, d fs.DirEntry) error) error {
	return filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		if d.IsDir() && p.shouldSkipDir != nil && p.shouldSkipDir(relPath) {
			return filepath.SkipDir
		}
		return visit(relPath, d)
	})
}

func (p *PollingWatcher) scan() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.walk(func(relPath string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		p.fileState[relPath] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
}

func (p *PollingWatcher) detectChanges() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]fileSnapshot)
	err := p.walk(func(relPath string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap := fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		current[relPath] = snap

		if prev, exists := p.fileState[relPath]; !exists {
			p.emit(FileEvent{Path: relPath, Operation: OpCreate, Timestamp: time.Now()})
		} else if prev.modTime != snap.modTime || prev.size != snap.size {
			p.emit(FileEvent{Path: relPath, Operation: OpUpdate, Timestamp: time.Now()})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watcher: walk for changes: %w", err)
	}

	for path := range p.fileState {
		if _, exists := current[path]; !exists {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: time.Now()})
		}
	}

	p.fileState = current
	return nil
}

// emit must be called with p.mu held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
	}
}
