package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamsplit/jamsplit/internal/storage"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLocalFetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "recordings/jam.wav", "pcm")

	local, err := storage.NewLocal(dir)
	require.NoError(t, err)

	path, err := local.Fetch(context.Background(), "recordings/jam.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "recordings", "jam.wav"), path)

	_, err = local.Fetch(context.Background(), "recordings/missing.wav")
	assert.Error(t, err)
}

func TestLocalFetchAbsoluteKey(t *testing.T) {
	dir := t.TempDir()
	abs := writeFile(t, dir, "jam.wav", "pcm")

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	path, err := local.Fetch(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}

func TestLocalRename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracks/jam/old.m4a", "audio")

	local, err := storage.NewLocal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, local.Rename(ctx, "tracks/jam/old.m4a", "tracks/jam/new.m4a"))

	ok, err := local.Exists(ctx, "tracks/jam/old.m4a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = local.Exists(ctx, "tracks/jam/new.m4a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalRenameSameKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracks/take.m4a", "audio")

	local, err := storage.NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, local.Rename(context.Background(), "tracks/take.m4a", "tracks/take.m4a"))

	ok, err := local.Exists(context.Background(), "tracks/take.m4a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalDeleteMissingIsNoError(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, local.Delete(context.Background(), "tracks/gone.m4a"))
}

func TestLocalDelete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracks/take.m4a", "audio")

	local, err := storage.NewLocal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, local.Delete(ctx, "tracks/take.m4a"))

	ok, err := local.Exists(ctx, "tracks/take.m4a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalPresignNotSupported(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = local.PresignGet(context.Background(), "tracks/take.m4a", 0)
	assert.ErrorIs(t, err, storage.ErrNotRemote)

	_, err = local.PresignPut(context.Background(), "uploads/jam.wav", "audio/wav", 0)
	assert.ErrorIs(t, err, storage.ErrNotRemote)
}

func TestLocalIsRemote(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	assert.False(t, local.IsRemote())
}
