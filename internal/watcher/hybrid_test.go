package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs w on root and stops it when the test ends.
func startWatcher(t *testing.T, w *HybridWatcher, root string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, root)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})
	// Give the watcher time to register its directories.
	time.Sleep(150 * time.Millisecond)
}

// collect gathers events until want is seen for path or the timeout fires.
func collect(t *testing.T, w *HybridWatcher, path string, want Operation) []FileEvent {
	t.Helper()
	var seen []FileEvent
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				t.Fatalf("events closed before %s %s", want, path)
			}
			seen = append(seen, batch...)
			for _, ev := range batch {
				if ev.Path == path && ev.Operation == want {
					return seen
				}
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s, saw %v", want, path, seen)
			return nil
		}
	}
}

func TestNewHybridWatcher_RequiresFilter(t *testing.T) {
	_, err := NewHybridWatcher(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestHybridWatcher_ReportsAcceptedNotesOnly(t *testing.T) {
	// Given: a watcher filtered by the notebook rules
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".amannotes"), 0o755))
	s, _ := newSyncer(t, root)
	w, err := NewHybridWatcher(s, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	// When: a note, a foreign file and an index file are written
	writeFile(t, root, "photo.png", "png")
	writeFile(t, root, ".amannotes/index.db", "db")
	writeFile(t, root, "inbox.md", "Buy milk")

	// Then: only the note is reported
	seen := collect(t, w, "inbox.md", OpCreate)
	for _, ev := range seen {
		assert.NotEqual(t, "photo.png", ev.Path)
		assert.NotEqual(t, ".amannotes/index.db", ev.Path)
	}
}

func TestHybridWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	s, _ := newSyncer(t, root)
	w, err := NewHybridWatcher(s, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "work"), 0o755))
	collect(t, w, "work", OpCreate)
	time.Sleep(50 * time.Millisecond)
	writeFile(t, root, "work/plan.md", "plan")

	collect(t, w, "work/plan.md", OpCreate)
}

func TestHybridWatcher_IgnoreFileChange(t *testing.T) {
	root := t.TempDir()
	s, _ := newSyncer(t, root)
	w, err := NewHybridWatcher(s, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	writeFile(t, root, ".gitignore", "drafts/\n")

	collect(t, w, ".gitignore", OpIgnoreChange)
}

func TestHybridWatcher_PollingMode(t *testing.T) {
	// Given: a watcher forced into polling mode
	root := t.TempDir()
	writeFile(t, root, "old.md", "old")
	s, _ := newSyncer(t, root)
	w, err := NewHybridWatcher(s, Options{
		Debounce:     20 * time.Millisecond,
		PollInterval: 30 * time.Millisecond,
		ForcePolling: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "polling", w.Mode())
	startWatcher(t, w, root)

	// When: a note is removed
	require.NoError(t, os.Remove(filepath.Join(root, "old.md")))

	// Then: the deletion is reported
	collect(t, w, "old.md", OpDelete)
}

func TestHybridWatcher_EndToEndDrivesIndexer(t *testing.T) {
	// Given: a syncer running on the watcher's events
	root := t.TempDir()
	s, idx := newSyncer(t, root)
	w, err := NewHybridWatcher(s, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, w.Events())

	// When: a note is written
	writeFile(t, root, "inbox.md", "Buy milk and eggs")

	// Then: the indexer receives the reindex
	assert.Eventually(t, func() bool {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		for _, op := range idx.ops {
			if op == "reindex inbox.md Buy milk and eggs" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestHybridWatcher_StopIsIdempotent(t *testing.T) {
	s, _ := newSyncer(t, t.TempDir())
	w, err := NewHybridWatcher(s, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
