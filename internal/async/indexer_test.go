package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundIndexer_RunsAndReportsReady(t *testing.T) {
	// Given: an indexer over three notes
	var called atomic.Bool
	b := NewBackgroundIndexer(IndexerConfig{Total: 3}, func(ctx context.Context, p *IndexProgress) error {
		called.Store(true)
		p.SetStage(StageIndexing)
		p.AddProcessed(3, 1)
		return nil
	})

	// When: the run starts and completes
	b.Start(context.Background())
	require.NoError(t, b.Wait())

	// Then: progress is complete and the runner is idle
	assert.True(t, called.Load())
	assert.False(t, b.IsRunning())
	snap := b.Progress().Snapshot()
	assert.Equal(t, "ready", snap.Status)
	assert.Equal(t, "done", snap.Stage)
	assert.Equal(t, 3, snap.NotesProcessed)
	assert.Equal(t, 1, snap.NotesFailed)
	assert.InDelta(t, 100.0, snap.ProgressPct, 0.001)
}

func TestBackgroundIndexer_IsRunningBeforeStartReturns(t *testing.T) {
	release := make(chan struct{})
	b := NewBackgroundIndexer(IndexerConfig{}, func(ctx context.Context, p *IndexProgress) error {
		<-release
		return nil
	})

	b.Start(context.Background())
	assert.True(t, b.IsRunning())
	assert.True(t, b.Progress().IsIndexing())

	close(release)
	require.NoError(t, b.Wait())
	assert.False(t, b.IsRunning())
}

func TestBackgroundIndexer_ErrorIsRecorded(t *testing.T) {
	boom := errors.New("boom")
	b := NewBackgroundIndexer(IndexerConfig{}, func(ctx context.Context, p *IndexProgress) error {
		return boom
	})

	b.Start(context.Background())
	err := b.Wait()

	assert.ErrorIs(t, err, boom)
	snap := b.Progress().Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Equal(t, "boom", snap.ErrorMessage)
}

func TestBackgroundIndexer_StopCancelsContext(t *testing.T) {
	// Given: a run that blocks until its context is cancelled
	b := NewBackgroundIndexer(IndexerConfig{}, func(ctx context.Context, p *IndexProgress) error {
		<-ctx.Done()
		return ctx.Err()
	})
	b.Start(context.Background())

	// When: stopping
	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()

	// Then: Stop returns once the run observed cancellation
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.ErrorIs(t, b.Wait(), context.Canceled)
}

func TestBackgroundIndexer_StopBeforeStartIsNoop(t *testing.T) {
	b := NewBackgroundIndexer(IndexerConfig{}, nil)
	b.Stop()
	assert.False(t, b.IsRunning())
}

func TestBackgroundIndexer_StartTwiceRunsOnce(t *testing.T) {
	var runs atomic.Int32
	b := NewBackgroundIndexer(IndexerConfig{}, func(ctx context.Context, p *IndexProgress) error {
		runs.Add(1)
		return nil
	})

	b.Start(context.Background())
	b.Start(context.Background())
	require.NoError(t, b.Wait())

	assert.Equal(t, int32(1), runs.Load())
}

func TestBackgroundIndexer_LockFileLifecycle(t *testing.T) {
	// Given: a data directory
	dir := t.TempDir()
	var sawLock atomic.Bool
	b := NewBackgroundIndexer(IndexerConfig{DataDir: dir}, func(ctx context.Context, p *IndexProgress) error {
		sawLock.Store(HasIncompleteLock(dir))
		return nil
	})

	// When: the run completes
	b.Start(context.Background())
	require.NoError(t, b.Wait())

	// Then: the lock existed during the run and is gone afterwards
	assert.True(t, sawLock.Load())
	assert.False(t, HasIncompleteLock(dir))
}

func TestBackgroundIndexer_UnwritableDataDirStillRuns(t *testing.T) {
	// Given: a data directory path below a regular file
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	dataDir := filepath.Join(file, "data")
	var ran atomic.Bool
	b := NewBackgroundIndexer(IndexerConfig{DataDir: dataDir, Total: 1}, func(ctx context.Context, p *IndexProgress) error {
		ran.Store(true)
		p.AddProcessed(1, 0)
		return nil
	})

	// When: the run completes
	b.Start(context.Background())
	require.NoError(t, b.Wait())

	// Then: the work ran and the run is ready without a marker
	assert.True(t, ran.Load())
	snap := b.Progress().Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, 1, snap.NotesProcessed)
	assert.False(t, HasIncompleteLock(dataDir))
}

func TestHasIncompleteLock(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasIncompleteLock(dir))
	assert.False(t, HasIncompleteLock(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("x"), 0o644))
	assert.True(t, HasIncompleteLock(dir))
}

func TestIndexProgress_SnapshotPartial(t *testing.T) {
	p := NewIndexProgress(4)
	p.AddProcessed(1, 0)

	snap := p.Snapshot()
	assert.Equal(t, "indexing", snap.Status)
	assert.Equal(t, "pending", snap.Stage)
	assert.InDelta(t, 25.0, snap.ProgressPct, 0.001)
}

func TestIndexProgress_EmptyReadyIsComplete(t *testing.T) {
	p := NewIndexProgress(0)
	p.SetReady()
	assert.InDelta(t, 100.0, p.Snapshot().ProgressPct, 0.001)
	assert.False(t, p.IsIndexing())
}
