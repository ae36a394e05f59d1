// Package manager implements the indexing manager (spec.md §4.7/§9): it
// orchestrates bulk scans and live watcher-driven updates across the
// keyword index and, optionally, the vector index.
//
// Per REDESIGN FLAGS this is a single Manager rather than the teacher's
// basic/enhanced-manager inheritance pair: a nil vector store runs the
// manager in keyword-only mode ({keyword_writer}); a non-nil one runs it in
// the enhanced mode ({keyword_writer, vector_writer}) — the same
// capability set the teacher expressed as two subclasses.
package manager

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/fsindex/fsindex/internal/chunk"
	"github.com/fsindex/fsindex/internal/classifier"
	"github.com/fsindex/fsindex/internal/extractor"
	"github.com/fsindex/fsindex/internal/keyword"
	"github.com/fsindex/fsindex/internal/queue"
	"github.com/fsindex/fsindex/internal/scheduler"
	"github.com/fsindex/fsindex/internal/vector"
	"github.com/fsindex/fsindex/internal/watcher"
)

// Config bundles the manager's operating parameters, drawn from
// config.Config's fields relevant to orchestration rather than to any one
// subsystem's internals.
type Config struct {
	MonitoredPaths []string
	Policy         classifier.Policy
	ChunkOptions   chunk.Options
	MaxWorkers     int
	QueueCapacity  int
	SimilarityTopK int
	// LockDir is where the cross-process startup lock file is created
	// (spec.md §9's adaptation of the teacher's model-download FileLock
	// to index-directory exclusivity). Empty disables locking, useful for
	// tests that don't want a lock file on disk.
	LockDir string
}

// Stats holds the session counters: files processed, failed, skipped, and
// vector writes that failed. It records no elapsed time or throughput;
// BulkScan only logs the elapsed time of its enumeration.
type Stats struct {
	Processed    int64
	Failed       int64
	Skipped      int64
	VectorFailed int64
}

// Manager drives the change-driven indexing pipeline: discovery → queue →
// worker pool → extraction → dual indexing.
type Manager struct {
	cfg     Config
	keyword *keyword.Index
	vector  *vector.Store // nil => keyword-only mode
	watch   watcher.Watcher
	logger  *slog.Logger

	q   *queue.Queue
	sch *scheduler.Scheduler

	lock *flock.Flock

	mu           sync.Mutex
	indexedPaths map[string]bool

	processed    atomic.Int64
	failed       atomic.Int64
	skipped      atomic.Int64
	vectorFailed atomic.Int64
	running      atomic.Bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New constructs a Manager. vectorStore may be nil to run keyword-only.
func New(cfg Config, kw *keyword.Index, vectorStore *vector.Store, w watcher.Watcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:          cfg,
		keyword:      kw,
		vector:       vectorStore,
		watch:        w,
		logger:       logger,
		indexedPaths: make(map[string]bool),
	}
	if cfg.LockDir != "" {
		m.lock = flock.New(filepath.Join(cfg.LockDir, ".fsindex.lock"))
	}
	return m
}

// Start acquires the startup lock, reconciles state against the current
// filesystem, launches the worker pool, and begins forwarding watcher
// events onto the queue. It does not block; call Stop to shut down.
func (m *Manager) Start(ctx context.Context) error {
	if m.lock != nil {
		locked, err := m.lock.TryLock()
		if err != nil {
			return fmt.Errorf("manager: acquire startup lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("manager: index directory already locked by another process")
		}
	}

	m.q = queue.New(m.cfg.QueueCapacity)
	m.sch = scheduler.New(m.q, m.cfg.MaxWorkers, m.processJob, m.logger)
	m.running.Store(true)

	if err := m.reconcileOnStartup(ctx); err != nil {
		m.logger.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	}

	m.sch.Start(ctx)

	if m.watch != nil {
		m.startWatching(ctx)
	}

	return nil
}

// startWatching launches the watcher on every monitored path and forwards
// its events onto the job queue at priority high, per spec.md §4.6.
func (m *Manager) startWatching(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchDone = make(chan struct{})

	go func() {
		defer close(m.watchDone)
		for _, root := range m.cfg.MonitoredPaths {
			if err := m.watch.Start(watchCtx, root); err != nil && watchCtx.Err() == nil {
				m.logger.Error("watcher start failed", slog.String("root", root), slog.String("error", err.Error()))
			}
		}
	}()

	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case ev, ok := <-m.watch.Events():
				if !ok {
					return
				}
				m.enqueueFileEvent(ev)
			case err, ok := <-m.watch.Errors():
				if !ok {
					return
				}
				m.logger.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}

func (m *Manager) enqueueFileEvent(ev watcher.FileEvent) {
	if ev.IsDir {
		return
	}
	op := toQueueOp(ev.Operation)
	if err := m.q.Push(queue.Job{Path: ev.Path, Operation: op}, queue.PriorityHigh); err != nil {
		m.logger.Warn("dropping watcher event: queue full",
			slog.String("path", ev.Path), slog.String("error", err.Error()))
	}
}

func toQueueOp(op watcher.Operation) queue.Operation {
	switch op {
	case watcher.OpCreate:
		return queue.OpCreate
	case watcher.OpUpdate:
		return queue.OpUpdate
	default:
		return queue.OpDelete
	}
}

// BulkScan recursively enumerates every monitored root, skipping excluded
// directories, and enqueues a create job at priority low for each eligible
// file (spec.md §4.7). It returns once enumeration is complete; jobs drain
// asynchronously through the scheduler.
func (m *Manager) BulkScan(ctx context.Context) error {
	start := time.Now()
	var enumerated int64

	for _, root := range m.cfg.MonitoredPaths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			relToRoot, _ := filepath.Rel(root, path)
			if d.IsDir() {
				if relToRoot != "." && classifier.IsExcludedDir(relToRoot, m.cfg.Policy.ExcludedDirs) {
					return filepath.SkipDir
				}
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return nil
			}
			if !classifier.ShouldIndex(path, info.Size(), m.cfg.Policy) {
				m.skipped.Add(1)
				return nil
			}

			if pushErr := m.q.Push(queue.Job{Path: path, Operation: queue.OpCreate}, queue.PriorityLow); pushErr != nil {
				m.logger.Warn("bulk scan: queue full, dropping", slog.String("path", path))
				return nil
			}
			atomic.AddInt64(&enumerated, 1)
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	m.logger.Info("bulk scan enumeration complete",
		slog.Int64("enumerated", enumerated),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// processJob implements spec.md §4.7's exact per-job processing policy.
func (m *Manager) processJob(ctx context.Context, job queue.Job) error {
	if job.Operation == queue.OpDelete {
		return m.processDelete(ctx, job.Path)
	}

	info, err := fileSize(job.Path)
	if err != nil || !classifier.ShouldIndex(job.Path, info, m.cfg.Policy) {
		m.skipped.Add(1)
		return nil
	}

	meta, err := classifier.MetadataForWithPolicy(job.Path, time.Now().UTC(), m.cfg.Policy)
	if err != nil {
		m.failed.Add(1)
		return nil
	}

	text, mediaType, err := extractor.ExtractFile(job.Path)
	if err != nil {
		m.failed.Add(1)
		return nil
	}
	meta.MimeType = mediaType

	doc := keyword.Document{
		Path:         meta.Path,
		Filename:     meta.Filename,
		Content:      text,
		Extension:    meta.Extension,
		FileType:     meta.FileType,
		MimeType:     meta.MimeType,
		Size:         meta.Size,
		ModifiedTime: meta.ModifiedTime,
		CreatedTime:  meta.CreatedTime,
		ContentHash:  meta.ContentHash,
		IndexedTime:  meta.IndexedTime,
	}

	m.mu.Lock()
	alreadyIndexed := m.indexedPaths[job.Path]
	m.mu.Unlock()

	var kwErr error
	if job.Operation == queue.OpCreate || !alreadyIndexed {
		kwErr = m.keyword.Add(ctx, doc)
	} else {
		kwErr = m.keyword.Update(ctx, doc)
	}
	if kwErr != nil {
		m.failed.Add(1)
		m.logger.Error("keyword write failed", slog.String("path", job.Path), slog.String("error", kwErr.Error()))
	} else {
		m.mu.Lock()
		m.indexedPaths[job.Path] = true
		m.mu.Unlock()
		m.processed.Add(1)
	}

	if m.vector != nil && text != "" {
		if vecErr := m.reindexVector(ctx, job.Path, text, meta); vecErr != nil {
			m.vectorFailed.Add(1)
			m.logger.Error("vector write failed", slog.String("path", job.Path), slog.String("error", vecErr.Error()))
		}
	}

	return nil
}

func (m *Manager) processDelete(ctx context.Context, path string) error {
	if _, err := m.keyword.Delete(ctx, path); err != nil {
		m.logger.Error("keyword delete failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if m.vector != nil {
		if _, err := m.vector.DeleteBySource(ctx, path); err != nil {
			m.logger.Error("vector delete failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	m.mu.Lock()
	delete(m.indexedPaths, path)
	m.mu.Unlock()
	return nil
}

func (m *Manager) reindexVector(ctx context.Context, path, text string, meta classifier.FileMetadata) error {
	if _, err := m.vector.DeleteBySource(ctx, path); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	chunks := chunk.Split(path, text, m.cfg.ChunkOptions)
	if len(chunks) == 0 {
		return nil
	}

	snapshot := fmt.Sprintf(
		`{"filename":%q,"extension":%q,"file_type":%q,"mime_type":%q,"size":%d}`,
		meta.Filename, meta.Extension, meta.FileType, meta.MimeType, meta.Size,
	)

	inputs := make([]vector.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = vector.ChunkInput{
			ChunkID:      c.ID,
			SourcePath:   c.SourcePath,
			ChunkIndex:   c.Index,
			StartChar:    c.StartOffset,
			EndChar:      c.EndOffset,
			Text:         c.Text,
			FileMetadata: snapshot,
			FileType:     meta.FileType,
		}
	}

	return m.vector.AddChunks(ctx, inputs, time.Now().UTC())
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// reconcileOnStartup compares the keyword index's recorded paths against
// the live filesystem (grounded on the teacher's
// Coordinator.ReconcileFilesOnStartup) and enqueues delete jobs for paths
// that no longer exist; paths that still exist are recorded as already
// indexed. The vector store's chunks are not examined.
func (m *Manager) reconcileOnStartup(ctx context.Context) error {
	if m.keyword == nil {
		return nil
	}
	indexedPaths, err := m.keyword.AllPaths()
	if err != nil {
		return fmt.Errorf("reconcile: list indexed paths: %w", err)
	}

	for _, p := range indexedPaths {
		if _, err := os.Stat(p); err != nil {
			if pushErr := m.q.Push(queue.Job{Path: p, Operation: queue.OpDelete}, queue.PriorityNormal); pushErr != nil {
				m.logger.Warn("reconcile: queue full, dropping delete", slog.String("path", p))
			}
		} else {
			m.mu.Lock()
			m.indexedPaths[p] = true
			m.mu.Unlock()
		}
	}

	return nil
}

// Drain waits up to timeout for the queue to empty, matching spec.md §5's
// 30s drain budget on shutdown. An in-flight job is allowed to finish; this
// only waits for the queue to stop holding unstarted work.
func (m *Manager) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.q.Len() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	m.logger.Warn("shutdown: drain timeout exceeded, proceeding with in-flight jobs only")
}

// Stop stops the watcher, drains the queue (spec.md §5's 30s budget),
// shuts down the worker pool, and releases the startup lock. It does not
// close the keyword/vector indexes — callers own those handles.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}

	if m.watchCancel != nil {
		m.watchCancel()
	}
	if m.watch != nil {
		_ = m.watch.Stop()
	}
	if m.watchDone != nil {
		<-m.watchDone
	}

	m.Drain(30 * time.Second)

	if m.q != nil {
		m.q.Close()
	}
	if m.sch != nil {
		m.sch.Stop()
	}

	if m.lock != nil {
		_ = m.lock.Unlock()
	}
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Processed:    m.processed.Load(),
		Failed:       m.failed.Load(),
		Skipped:      m.skipped.Load(),
		VectorFailed: m.vectorFailed.Load(),
	}
}
