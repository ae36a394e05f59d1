// Package scheduler runs the worker pool that drains internal/queue and
// hands each job to an injected processing function (spec.md §4.7, §5).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsindex/fsindex/internal/queue"
)

// ProcessFunc handles one job. It is supplied by the indexing manager, which
// owns the statistics counters and the "indexed paths" set (spec.md §5) —
// the scheduler itself is only responsible for dispatch and concurrency.
type ProcessFunc func(ctx context.Context, job queue.Job) error

// pollInterval is the bounded wait spec.md §5 describes: the manager
// suspends when the queue is empty for up to 1s, then re-checks the running
// flag, rather than blocking forever on an empty queue.
const pollInterval = 1 * time.Second

// Scheduler is the bounded-parallelism worker pool described in spec.md
// §4.7: a fixed-size pool of workers pulling one job at a time from a
// single shared priority queue, with no affinity between workers and paths.
type Scheduler struct {
	queue   *queue.Queue
	workers int
	process ProcessFunc
	logger  *slog.Logger

	// pathLocks bounds two workers to never run jobs for the same path
	// concurrently (spec.md §3's "at-most-one in-flight operation per
	// path"), while still running every distinct job to completion —
	// unlike coalescing, no job is ever skipped. The order in which jobs
	// waiting on the same path acquire its lock is not defined.
	pathLocks *pathLockTable

	group  *errgroup.Group
	cancel context.CancelFunc
}

// pathLockTable hands out a per-path mutex, refcounted so the map only holds
// entries for paths with a job currently in flight or waiting.
type pathLockTable struct {
	mu    sync.Mutex
	locks map[string]*refcountedLock
}

type refcountedLock struct {
	mu  sync.Mutex
	ref int
}

func newPathLockTable() *pathLockTable {
	return &pathLockTable{locks: make(map[string]*refcountedLock)}
}

// Lock blocks until path's lock is free, then acquires it.
func (t *pathLockTable) Lock(path string) {
	t.mu.Lock()
	l, ok := t.locks[path]
	if !ok {
		l = &refcountedLock{}
		t.locks[path] = l
	}
	l.ref++
	t.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases path's lock, dropping it from the table once no other
// caller is holding or waiting on it.
func (t *pathLockTable) Unlock(path string) {
	t.mu.Lock()
	l := t.locks[path]
	l.ref--
	if l.ref == 0 {
		delete(t.locks, path)
	}
	t.mu.Unlock()

	l.mu.Unlock()
}

// New creates a Scheduler with workers worker goroutines, pulling jobs from
// q and dispatching them to process.
func New(q *queue.Queue, workers int, process ProcessFunc, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{queue: q, workers: workers, process: process, logger: logger, pathLocks: newPathLockTable()}
}

// Start launches the worker pool. It returns immediately; call Stop (or
// cancel a parent context passed in) to shut the pool down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	s.group = group

	for i := 0; i < s.workers; i++ {
		group.Go(func() error {
			s.runWorker(gctx)
			return nil
		})
	}
}

func (s *Scheduler) runWorker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		popCtx, cancel := context.WithTimeout(ctx, pollInterval)
		job, err := s.queue.Pop(popCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			// ErrClosed or the parent context was cancelled: stop this worker.
			return
		}

		s.dispatch(ctx, job)
	}
}

// dispatch runs job under job.Path's lock, so a second job queued for a path
// already being processed waits for the first to finish rather than racing
// its writes — but still runs once the lock is free, unlike coalescing two
// distinct jobs into one.
func (s *Scheduler) dispatch(ctx context.Context, job queue.Job) {
	s.pathLocks.Lock(job.Path)
	err := s.process(ctx, job)
	s.pathLocks.Unlock(job.Path)

	if err != nil {
		s.logger.Warn("job processing failed",
			slog.String("path", job.Path),
			slog.String("operation", job.Operation.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Stop cancels all workers and waits for them to finish their current job.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
}
