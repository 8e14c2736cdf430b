package watcher

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path. Within one window:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE becomes DELETE (the path may have held a note
//     before the create, e.g. an editor's rename-over save)
//   - MODIFY then DELETE becomes DELETE
//   - DELETE then CREATE becomes MODIFY (the file was replaced)
//
// A batch is emitted once no event has arrived for the window duration.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer emitting on a channel with room for
// buffer batches.
func NewDebouncer(window time.Duration, buffer int) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, max(buffer, 1)),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		event = coalesce(prev, event)
	}
	d.pending[event.Path] = event

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into prev.
func coalesce(prev, next FileEvent) FileEvent {
	switch {
	case prev.Operation == OpCreate && next.Operation == OpModify:
		return prev
	case prev.Operation.removes() && next.Operation == OpCreate:
		next.Operation = OpModify
		return next
	default:
		return next
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}
	d.pending = make(map[string]FileEvent)
	slices.SortFunc(batch, func(a, b FileEvent) int { return strings.Compare(a.Path, b.Path) })

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer_output_full", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches, sorted by path.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
