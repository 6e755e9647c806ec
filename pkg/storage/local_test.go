package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "bucket"))
	require.NoError(t, err)

	source := filepath.Join(t.TempDir(), "backup.sql.gz.001")
	require.NoError(t, os.WriteFile(source, []byte("part one"), 0644))

	folder := "databaseBackups/2024/Month-3/backup-2024-03-05T10-15-30-123Z"
	location, err := store.Upload(ctx, source, "backup.sql.gz.001", folder)
	require.NoError(t, err)
	assert.Contains(t, location, "file://")
	assert.Contains(t, location, folder+"/backup.sql.gz.001")

	objects, err := store.List(ctx, "databaseBackups/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, folder+"/backup.sql.gz.001", objects[0].Key)
	assert.EqualValues(t, 8, objects[0].Size)

	objects, err = store.List(ctx, "otherBackups/")
	require.NoError(t, err)
	assert.Empty(t, objects)

	downloaded := filepath.Join(t.TempDir(), "downloaded")
	require.NoError(t, store.Download(ctx, folder+"/backup.sql.gz.001", downloaded))
	data, err := os.ReadFile(downloaded)
	require.NoError(t, err)
	assert.Equal(t, "part one", string(data))

	require.NoError(t, store.Delete(ctx, folder, "backup.sql.gz.001"))
	objects, err = store.List(ctx, "databaseBackups/")
	require.NoError(t, err)
	assert.Empty(t, objects)

	assert.Error(t, store.Delete(ctx, folder, "backup.sql.gz.001"))
}

func TestLocalStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(ctx, "whatever", "a", "b")
	assert.ErrorIs(t, err, context.Canceled)
}
