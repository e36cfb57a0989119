package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	first, err := Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), Holder(path))

	_, err = Acquire(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "second release is a no-op")

	second, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestNilRelease(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}

func TestAcquireMissingDirectory(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "missing", FileName))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestHolderUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	assert.Equal(t, 0, Holder(path))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	assert.Equal(t, 0, Holder(path))
}
