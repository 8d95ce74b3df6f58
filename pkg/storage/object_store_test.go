package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalObjectStorePutOpenDelete(t *testing.T) {
	files, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := NewLocalObjectStore(files, "/static/")

	url, err := store.Put(context.Background(), "slides/s1/slide_1.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/static/slides/s1/slide_1.png", url)

	rc, err := store.Open(context.Background(), "slides/s1/slide_1.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png", string(data))

	key, ok := KeyFromURL(store, url)
	require.True(t, ok)
	assert.Equal(t, "slides/s1/slide_1.png", key)

	_, ok = KeyFromURL(store, "https://cdn.example.com/x.png")
	assert.False(t, ok)

	require.NoError(t, store.Delete(context.Background(), key))
	_, err = store.Open(context.Background(), key)
	require.Error(t, err)
}

func TestLocalStorageConfinesPaths(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = files.Save("../../escape.txt", []byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.NoError(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = files.Save("exports/old.pdf", []byte("old"))
	require.NoError(t, err)
	_, err = files.Save("exports/new.pdf", []byte("new"))
	require.NoError(t, err)
	_, err = files.Save("avatars/keep.png", []byte("keep"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(files.Path("exports/old.pdf"), past, past))
	require.NoError(t, os.Chtimes(files.Path("avatars/keep.png"), past, past))

	deleted, err := files.CleanupOlderThan("exports", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("exports", "old.pdf")}, deleted)

	_, err = os.Stat(files.Path("avatars/keep.png"))
	require.NoError(t, err)

	deleted, err = files.CleanupOlderThan("missing", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestLocalStorageLeavesNoTempFilesAndPrunesDirs(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = files.Save("slides/session-1/slide_01.png", []byte("png"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "slides", "session-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "slide_01.png", entries[0].Name())

	require.NoError(t, files.Delete("slides/session-1/slide_01.png"))
	_, err = os.Stat(filepath.Join(dir, "slides"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func TestLocalStorageCleanupSweepsAbandonedTempFiles(t *testing.T) {
	dir := t.TempDir()
	files, err := NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(files.Path("exports"), 0o755))
	stale := filepath.Join(files.Path("exports"), tempPrefix+"123")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	deleted, err := files.CleanupOlderThan("exports", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, deleted)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
