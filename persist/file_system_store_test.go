package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-imas/securefoundation/errs"
	"github.com/project-imas/securefoundation/internal/misc"
)

func TestFileSystemStore(t *testing.T) {
	store, err := NewFileSystemStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	testStoreImplementation(t, store)
}

func TestFileSystemStore_Layout(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	store, err := NewFileSystemStore(base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(misc.DirPermissions), info.Mode().Perm())

	_, err = store.Save([]byte("keychain"), "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, misc.KeychainFileName), store.Path())
	info, err = os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(misc.FilePermissions), info.Mode().Perm())

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestFileSystemStore_SharedArtifact(t *testing.T) {
	base := t.TempDir()
	a, err := NewFileSystemStore(base)
	require.NoError(t, err)
	b, err := NewFileSystemStore(base)
	require.NoError(t, err)

	v1, err := a.Save([]byte("one"), "")
	require.NoError(t, err)

	_, err = b.Save([]byte("two"), v1)
	require.NoError(t, err)

	_, err = a.Save([]byte("three"), v1)
	assert.ErrorIs(t, err, errs.ErrConcurrentModification)
}

func TestNewFileSystemStore_InvalidPath(t *testing.T) {
	_, err := NewFileSystemStore("   ")
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = NewFileSystemStore("bad\x00path")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
