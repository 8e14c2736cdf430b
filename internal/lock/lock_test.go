package lock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
)

func TestDirLock_AcquireRelease(t *testing.T) {
	// Given: a data directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "data")
	l := New(dir)

	// When: acquiring the lock
	require.NoError(t, l.Acquire())

	// Then: the lock file is created and held
	assert.True(t, l.IsLocked())
	assert.FileExists(t, filepath.Join(dir, FileName))
	assert.Equal(t, filepath.Join(dir, FileName), l.Path())

	// When: releasing twice
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	// Then: it is no longer held
	assert.False(t, l.IsLocked())
}

func TestDirLock_SecondHolderIsRejected(t *testing.T) {
	// Given: one holder of the lock
	dir := t.TempDir()
	first := New(dir)
	require.NoError(t, first.Acquire())
	defer first.Release()

	// When: a second lock on the same directory is attempted
	second := New(dir)
	err := second.Acquire()

	// Then: it fails with the index-locked code and a suggestion
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeIndexLocked, amerrors.GetCode(err))
	var ce *amerrors.CodedError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Suggestion)
	assert.Equal(t, second.Path(), ce.Details["lock_file"])
	assert.False(t, second.IsLocked())
}

func TestDirLock_ReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	require.NoError(t, first.Acquire())
	require.NoError(t, first.Release())

	second := New(dir)
	require.NoError(t, second.Acquire())
	assert.NoError(t, second.Release())
}

func TestDirLock_ReleaseWithoutAcquire(t *testing.T) {
	assert.NoError(t, New(t.TempDir()).Release())
}
