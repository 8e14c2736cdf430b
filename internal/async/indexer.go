package async

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// lockFileName marks a full reindex in flight. It survives a crash, so
// the next start can tell the index may be incomplete.
const lockFileName = "indexing.lock"

// IndexFunc is the reindex work itself.
type IndexFunc func(ctx context.Context, progress *IndexProgress) error

// IndexerConfig configures the BackgroundIndexer.
type IndexerConfig struct {
	// DataDir holds the lock file. Empty disables it.
	DataDir string

	// Total is the number of notes the run will process.
	Total int
}

// BackgroundIndexer runs one reindex in a background goroutine with
// progress tracking. It is single-use.
type BackgroundIndexer struct {
	config   IndexerConfig
	progress *IndexProgress

	// IndexFunc is the work to run.
	IndexFunc IndexFunc

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

// NewBackgroundIndexer creates a background indexer.
func NewBackgroundIndexer(cfg IndexerConfig, fn IndexFunc) *BackgroundIndexer {
	return &BackgroundIndexer{
		config:    cfg,
		progress:  NewIndexProgress(cfg.Total),
		IndexFunc: fn,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Progress returns the progress tracker for this run.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

// IsRunning returns true while the run is in progress.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins the run in a background goroutine and returns immediately.
// Later calls are no-ops.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *BackgroundIndexer) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if lockPath, ok := writeLockFile(b.config.DataDir); ok {
		defer func() { _ = os.Remove(lockPath) }()
	}

	if b.IndexFunc != nil {
		if err := b.IndexFunc(ctx, b.progress); err != nil {
			b.fail(err)
			return
		}
	}
	b.progress.SetReady()
}

// writeLockFile records a run in flight. The marker is advisory: when it
// cannot be written the run goes ahead without it.
func writeLockFile(dataDir string) (string, bool) {
	if dataDir == "" {
		return "", false
	}
	lockPath := filepath.Join(dataDir, lockFileName)
	err := os.MkdirAll(dataDir, 0o755)
	if err == nil {
		err = os.WriteFile(lockPath, []byte(time.Now().Format(time.RFC3339)), 0o644)
	}
	if err != nil {
		slog.Warn("index_lock_file_skipped",
			slog.String("path", lockPath),
			slog.String("error", err.Error()))
		return "", false
	}
	return lockPath, true
}

func (b *BackgroundIndexer) fail(err error) {
	b.progress.SetError(err.Error())
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Stop cancels the run and waits for it to finish.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return
	}
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// Wait blocks until the run completes and returns its error. It must not
// be called before Start.
func (b *BackgroundIndexer) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed when the run completes.
func (b *BackgroundIndexer) Done() <-chan struct{} {
	return b.doneCh
}

// HasIncompleteLock reports whether a previous run in dataDir never
// finished.
func HasIncompleteLock(dataDir string) bool {
	if dataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dataDir, lockFileName))
	return err == nil
}
