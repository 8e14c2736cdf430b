package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree every interval.
// Used when fsnotify is unavailable or events are not delivered.
type PollingWatcher struct {
	interval time.Duration
	filter   Filter
	root     string

	mu       sync.Mutex
	snapshot map[string]fileState
	events   chan FileEvent
	stopCh   chan struct{}
	stopped  bool
}

type fileState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. Directories the filter
// ignores are not descended into.
func NewPollingWatcher(interval time.Duration, filter Filter) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		filter:   filter,
		snapshot: make(map[string]fileState),
		events:   make(chan FileEvent, 256),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline scan and then polls until ctx is done or Stop is
// called.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.root = abs

	baseline, err := p.scan()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	p.mu.Lock()
	p.snapshot = baseline
	p.mu.Unlock()

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
			if err := p.poll(); err != nil {
				slog.Warn("poll_failed", slog.String("root", p.root), slog.String("error", err.Error()))
			}
		}
	}
}

func (p *PollingWatcher) scan() (map[string]fileState, error) {
	current := make(map[string]fileState)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == p.root {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() && p.filter.IsIgnoredDir(rel) {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		current[rel] = fileState{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return current, err
}

// poll diffs a fresh scan against the last one.
func (p *PollingWatcher) poll() error {
	current, err := p.scan()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for rel, st := range current {
		prev, seen := p.snapshot[rel]
		switch {
		case !seen:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, IsDir: st.isDir, Timestamp: now})
		case !st.isDir && (prev.modTime != st.modTime || prev.size != st.size):
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, st := range p.snapshot {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, IsDir: st.isDir, Timestamp: now})
		}
	}
	p.snapshot = current
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
		slog.Warn("poll_buffer_full", slog.String("path", event.Path), slog.String("op", event.Operation.String()))
	}
}

// Events returns the channel of raw, undebounced events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Stop ends polling and closes the events channel. Safe to call multiple
// times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}
