package persist

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-imas/securefoundation/errs"
)

// testStoreImplementation exercises the behaviour every Store must share.
func testStoreImplementation(t *testing.T, store Store) {
	first := []byte("bplist00 first keychain")
	second := []byte("bplist00 second keychain")

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping())
	})

	t.Run("GetType", func(t *testing.T) {
		assert.NotEmpty(t, store.GetType())
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := store.Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.ErrorIs(t, err, errs.ErrStorage)
		assert.False(t, mustExists(store.Exists()))
	})

	var version string
	t.Run("Save", func(t *testing.T) {
		v, err := store.Save(first, "")
		require.NoError(t, err)
		assert.NotEmpty(t, v)
		assert.Equal(t, calculateVersion(first), v)
		version = v
		assert.True(t, mustExists(store.Exists()))
	})

	t.Run("Load", func(t *testing.T) {
		data, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, first, data.Data)
		assert.Equal(t, version, data.Version)
		assert.False(t, data.Timestamp.IsZero())
	})

	t.Run("SaveWithExpectedVersion", func(t *testing.T) {
		v, err := store.Save(second, version)
		require.NoError(t, err)
		assert.NotEqual(t, version, v)

		data, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, second, data.Data)
		version = v
	})

	t.Run("SaveWithStaleVersion", func(t *testing.T) {
		_, err := store.Save(first, calculateVersion(first))
		require.Error(t, err)

		var ce ConcurrencyError
		require.True(t, errors.As(err, &ce))
		assert.True(t, ce.IsConcurrencyError())
		assert.Equal(t, version, ce.ActualVersion)
		assert.ErrorIs(t, err, errs.ErrConcurrentModification)

		data, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, second, data.Data, "a rejected save must not change the artifact")
	})

	t.Run("SaveNil", func(t *testing.T) {
		_, err := store.Save(nil, "")
		assert.ErrorIs(t, err, errs.ErrInput)
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = store.Save([]byte{byte(i), 1, 2, 3}, "")
			}(i)
		}
		wg.Wait()

		data, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, data.Data, 4, "artifact is always one complete write")
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete())
		assert.False(t, mustExists(store.Exists()))
		_, err := store.Load()
		assert.ErrorIs(t, err, errs.ErrNotFound)

		require.NoError(t, store.Delete(), "deleting a missing artifact is not an error")
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, store.Close())
	})
}

func mustExists(exists bool, err error) bool {
	if err != nil {
		panic(err)
	}
	return exists
}

func TestMemoryStore(t *testing.T) {
	testStoreImplementation(t, NewMemoryStore())
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Save([]byte("abc"), "")
	require.NoError(t, err)

	data, err := store.Load()
	require.NoError(t, err)
	data.Data[0] = 'z'

	again, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Data)
}

func TestNewStore(t *testing.T) {
	t.Run("filesystem", func(t *testing.T) {
		store, err := NewStore(StoreConfig{
			Type:   StoreTypeFileSystem,
			Config: map[string]interface{}{"base_path": t.TempDir()},
		})
		require.NoError(t, err)
		assert.Equal(t, string(StoreTypeFileSystem), store.GetType())
	})

	t.Run("default is filesystem", func(t *testing.T) {
		store, err := NewStore(StoreConfig{Config: map[string]interface{}{"base_path": t.TempDir()}})
		require.NoError(t, err)
		assert.Equal(t, string(StoreTypeFileSystem), store.GetType())
	})

	t.Run("memory", func(t *testing.T) {
		store, err := NewStore(StoreConfig{Type: StoreTypeMemory})
		require.NoError(t, err)
		assert.Equal(t, string(StoreTypeMemory), store.GetType())
	})

	t.Run("missing base path", func(t *testing.T) {
		_, err := NewStore(StoreConfig{Type: StoreTypeFileSystem})
		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewStore(StoreConfig{Type: "s3"})
		assert.Error(t, err)
	})
}
