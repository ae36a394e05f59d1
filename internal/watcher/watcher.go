// Package watcher turns native filesystem events into typed FileEvents for
// the scheduler (spec.md §4.6). A fsnotify-backed recursive watch is the
// primary mechanism; a polling watcher stands in when fsnotify cannot be
// initialized.
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpUpdate indicates an existing file's content changed.
	OpUpdate
	// OpDelete indicates a file was removed (or renamed away from this path).
	OpDelete
)

// String returns a human-readable operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single observed filesystem change for one path.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher watches a directory tree and emits FileEvents for file changes.
// Directory events are never emitted (spec.md §4.6: "any directory event |
// ignored"); descent into new directories happens internally.
type Watcher interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan FileEvent
	Errors() <-chan error
}

// Options configures watcher behavior.
type Options struct {
	// DebounceWindow coalesces rapid-fire events per path before emission.
	DebounceWindow time.Duration
	// PollInterval is the scan interval for the polling fallback.
	PollInterval time.Duration
	// EventBufferSize bounds the output event channel; once full, events
	// are dropped and DroppedEvents is incremented (spec.md §4.6).
	EventBufferSize int
}

// DefaultOptions returns the watcher's default tuning.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero-valued fields with DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
