package index

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type opKind int

const (
	opReindex opKind = iota
	opDelete
)

func (k opKind) String() string {
	if k == opDelete {
		return "delete"
	}
	return "reindex"
}

// noteOp is the latest requested change for one note.
type noteOp struct {
	kind opKind
	text string
}

// dispatcher runs per-note operations in the background. Operations on the
// same note run one at a time and coalesce: while one runs, further
// submissions replace each other and only the latest runs next. Different
// notes run in parallel up to the worker limit.
type dispatcher struct {
	ctx context.Context
	run func(ctx context.Context, noteID string, op noteOp)
	sem *semaphore.Weighted

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string]noteOp
	running map[string]bool
	active  int
	closed  bool
}

func newDispatcher(ctx context.Context, workers int, run func(context.Context, string, noteOp)) *dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &dispatcher{
		ctx:     ctx,
		run:     run,
		sem:     semaphore.NewWeighted(int64(workers)),
		pending: make(map[string]noteOp),
		running: make(map[string]bool),
	}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// submit queues op for noteID. It returns false once the dispatcher is
// closed.
func (d *dispatcher) submit(noteID string, op noteOp) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.pending[noteID] = op
	if d.running[noteID] {
		return true
	}
	d.running[noteID] = true
	d.active++
	go d.drain(noteID)
	return true
}

func (d *dispatcher) drain(noteID string) {
	defer func() {
		d.mu.Lock()
		d.active--
		if d.active == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}()

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		d.mu.Lock()
		delete(d.pending, noteID)
		delete(d.running, noteID)
		d.mu.Unlock()
		return
	}
	defer d.sem.Release(1)

	for {
		op, ok := d.next(noteID)
		if !ok {
			return
		}
		d.run(d.ctx, noteID, op)
	}
}

// next pops the note's pending op. When there is none the note stops
// running in the same critical section, so a concurrent submit starts a
// fresh drain instead of being lost.
func (d *dispatcher) next(noteID string) (noteOp, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	op, ok := d.pending[noteID]
	if !ok {
		delete(d.running, noteID)
		return noteOp{}, false
	}
	delete(d.pending, noteID)
	return op, true
}

// wait blocks until no note has queued or running work.
func (d *dispatcher) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.active > 0 {
		d.idle.Wait()
	}
}

// close rejects further submissions and waits for queued work.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wait()
}

// queued returns the number of notes with work queued or running.
func (d *dispatcher) queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}
