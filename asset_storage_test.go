package gekko

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageBackends(t *testing.T) map[string]AssetStorage {
	t.Helper()
	dir, err := NewDirStorage(filepath.Join(t.TempDir(), "assets"))
	require.NoError(t, err)
	sqlite, err := NewSqliteStorage(filepath.Join(t.TempDir(), "db", "prefabs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]AssetStorage{
		"memory": NewMemoryStorage(),
		"dir":    dir,
		"sqlite": sqlite,
	}
}

func TestAssetStorage_ReadWrite(t *testing.T) {
	for name, storage := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			id := NewPrefabUuid()

			_, _, err := storage.Read(id)
			assert.ErrorIs(t, err, ErrAssetNotFound)
			_, err = storage.Version(id)
			assert.ErrorIs(t, err, ErrAssetNotFound)

			v1, err := storage.Write(id, []byte("first"))
			require.NoError(t, err)
			data, version, err := storage.Read(id)
			require.NoError(t, err)
			assert.Equal(t, "first", string(data))
			assert.Equal(t, v1, version)

			v2, err := storage.Write(id, []byte("second, longer"))
			require.NoError(t, err)
			assert.Greater(t, v2, v1)

			current, err := storage.Version(id)
			require.NoError(t, err)
			assert.Equal(t, v2, current)

			data, _, err = storage.Read(id)
			require.NoError(t, err)
			assert.Equal(t, "second, longer", string(data))
		})
	}
}

func TestAssetStorage_SameContentStillBumpsVersion(t *testing.T) {
	for name, storage := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			id := NewPrefabUuid()
			v1, err := storage.Write(id, []byte("same"))
			require.NoError(t, err)
			v2, err := storage.Write(id, []byte("same"))
			require.NoError(t, err)
			assert.Greater(t, v2, v1)
		})
	}
}

func TestDirStorage_ExternalEdit(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewDirStorage(dir)
	require.NoError(t, err)

	id := NewPrefabUuid()
	v1, err := storage.Write(id, []byte("a: 1\n"))
	require.NoError(t, err)

	// Another tool rewrites the file with a different size.
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.String()+".prefab.yaml"), []byte("a: 12345\n"), 0o644))

	v2, err := storage.Version(id)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	data, version, err := storage.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "a: 12345\n", string(data))
	assert.Equal(t, v2, version)
}

func TestSqliteStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefabs.db")
	id := NewPrefabUuid()

	storage, err := NewSqliteStorage(path)
	require.NoError(t, err)
	version, err := storage.Write(id, []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	reopened, err := NewSqliteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, got, err := reopened.Read(id)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
	assert.Equal(t, version, got)
}
