package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amannotes/internal/notes"
)

// HybridWatcher watches a notebook recursively with fsnotify, falling back
// to polling when fsnotify cannot be initialised. Events pass through the
// Filter and a Debouncer before reaching Events.
type HybridWatcher struct {
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	filter      Filter
	opts        Options

	events chan []FileEvent
	stopCh chan struct{}

	mu       sync.RWMutex
	root     string
	dirs     map[string]struct{}
	stopped  bool
	dropped  atomic.Uint64
	started  atomic.Bool
}

// NewHybridWatcher creates a watcher reporting paths the filter accepts.
func NewHybridWatcher(filter Filter, opts Options) (*HybridWatcher, error) {
	if filter == nil {
		return nil, fmt.Errorf("watcher filter is required")
	}
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.Debounce, opts.EventBufferSize),
		filter:    filter,
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		stopCh:    make(chan struct{}),
		dirs:      make(map[string]struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			h.fsWatcher = fsw
			return h, nil
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	h.pollWatcher = NewPollingWatcher(opts.PollInterval, filter)
	return h, nil
}

// Start watches root until ctx is done or Stop is called. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	if !h.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watcher already started")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	h.mu.Lock()
	h.root = abs
	h.mu.Unlock()

	go h.forward(ctx)

	if h.fsWatcher != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Info("watch_started", slog.String("root", h.root), slog.String("mode", h.Mode()))

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotify(ev)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for ev := range h.pollWatcher.Events() {
			h.route(ev)
		}
	}()
	slog.Info("watch_started", slog.String("root", h.root), slog.String("mode", h.Mode()))
	err := h.pollWatcher.Start(ctx, h.root)
	_ = h.Stop()
	return err
}

// handleFsnotify converts an fsnotify event to a FileEvent.
func (h *HybridWatcher) handleFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(h.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	isDir := false
	if op.removes() {
		h.mu.Lock()
		_, isDir = h.dirs[rel]
		delete(h.dirs, rel)
		h.mu.Unlock()
	} else if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if isDir && op == OpCreate && !h.filter.IsIgnoredDir(rel) {
		if err := h.addRecursive(ev.Name); err != nil {
			slog.Warn("watch_add_failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}

	h.route(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// route applies the filter and hands accepted events to the debouncer.
func (h *HybridWatcher) route(ev FileEvent) {
	if ev.Path == "" || ev.Path == "." {
		return
	}
	if slices.Contains(notes.IgnoreFiles, ev.Path) {
		ev.Operation = OpIgnoreChange
		h.debouncer.Add(ev)
		return
	}
	if ev.IsDir {
		if h.filter.IsIgnoredDir(ev.Path) {
			return
		}
	} else if !h.filter.Accepts(ev.Path) {
		return
	}
	h.debouncer.Add(ev)
}

func (h *HybridWatcher) forward(ctx context.Context) {
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
			h.emit(batch)
		}
	}
}

func (h *HybridWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && h.filter.IsIgnoredDir(rel) {
			return filepath.SkipDir
		}
		if err := h.fsWatcher.Add(path); err != nil {
			return err
		}
		h.mu.Lock()
		h.dirs[rel] = struct{}{}
		h.mu.Unlock()
		return nil
	})
}

func (h *HybridWatcher) emit(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		n := h.dropped.Add(1)
		slog.Warn("watch_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

// Events returns debounced batches of file events. Closed by Stop.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// DroppedBatches counts batches lost to a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.dropped.Load()
}

// Mode returns "fsnotify" or "polling".
func (h *HybridWatcher) Mode() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Stop releases the watcher and closes Events. Safe to call multiple times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()

	var err error
	if h.fsWatcher != nil {
		err = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}
	close(h.events)
	return err
}
