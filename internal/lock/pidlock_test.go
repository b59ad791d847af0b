package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "hireflow.lock")
	l, err := Acquire(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := Holder(path)
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, path, l.Path())
}

func TestAcquireHeldElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hireflow.lock")
	first, err := Acquire(path)
	require.NoError(t, err)

	// flock is per open file description, so a second open in the same
	// process conflicts.
	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrHeld)
	assert.Contains(t, err.Error(), "pid")

	require.NoError(t, first.Release())
	second, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
	assert.NoError(t, second.Release(), "release is idempotent")
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := Acquire("")
	assert.Error(t, err)
}

func TestHolderUnreadable(t *testing.T) {
	dir := t.TempDir()
	_, ok := Holder(filepath.Join(dir, "missing.lock"))
	assert.False(t, ok)

	garbage := filepath.Join(dir, "garbage.lock")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-pid\n"), 0o644))
	_, ok = Holder(garbage)
	assert.False(t, ok)
}
