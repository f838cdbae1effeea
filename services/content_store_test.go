package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContentStore(t *testing.T) *ContentStore {
	t.Helper()
	root := t.TempDir()
	store := NewContentStore(filepath.Join(root, "data"), filepath.Join(root, "data_webhooks"), filepath.Join(root, "storage"))
	require.NoError(t, store.EnsureLayout())
	return store
}

func TestEnsureLayoutCreatesPlaceholders(t *testing.T) {
	store := newTestContentStore(t)
	for _, dir := range []string{mustDir(t, store, NamespaceDirect), mustDir(t, store, NamespaceWebhook), store.StorageDir()} {
		assert.FileExists(t, filepath.Join(dir, PlaceholderName))
	}
}

func mustDir(t *testing.T, store *ContentStore, ns Namespace) string {
	t.Helper()
	dir, err := store.Dir(ns)
	require.NoError(t, err)
	return dir
}

func TestParseNamespace(t *testing.T) {
	ns, err := ParseNamespace("data_webhooks")
	require.NoError(t, err)
	assert.Equal(t, NamespaceWebhook, ns)

	ns, err = ParseNamespace(" Direct ")
	require.NoError(t, err)
	assert.Equal(t, NamespaceDirect, ns)

	_, err = ParseNamespace("storage")
	assert.ErrorIs(t, err, ErrUnknownNamespace)
}

func TestResolvePathStripsDirectories(t *testing.T) {
	store := newTestContentStore(t)

	path, err := store.ResolvePath(NamespaceDirect, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustDir(t, store, NamespaceDirect), "passwd"), path)

	path, err = store.ResolvePath(NamespaceDirect, `..\evil.txt`)
	require.NoError(t, err)
	assert.Equal(t, "evil.txt", filepath.Base(path))

	for _, bad := range []string{"", "..", ".hidden", "  "} {
		_, err := store.ResolvePath(NamespaceDirect, bad)
		assert.ErrorIs(t, err, ErrInvalidFilename, bad)
	}
}

func TestStageCommitAndDiscard(t *testing.T) {
	store := newTestContentStore(t)

	staged, err := store.Stage(NamespaceDirect, "notes.txt")
	require.NoError(t, err)
	_, err = staged.WriteString("hello")
	require.NoError(t, err)

	names, err := store.List(NamespaceDirect)
	require.NoError(t, err)
	assert.Empty(t, names, "staged files are hidden")

	require.NoError(t, staged.Commit())
	data, err := os.ReadFile(staged.FinalPath())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	other, err := store.Stage(NamespaceDirect, "other.txt")
	require.NoError(t, err)
	other.Discard()
	assert.NoFileExists(t, other.Name())
	assert.NoFileExists(t, other.FinalPath())
}

func TestStageRejectsPlaceholder(t *testing.T) {
	store := newTestContentStore(t)
	_, err := store.Stage(NamespaceWebhook, PlaceholderName)
	assert.ErrorIs(t, err, ErrReservedFile)
}

func TestContentStoreAppendText(t *testing.T) {
	store := newTestContentStore(t)

	path, err := store.AppendText(NamespaceDirect, "notes.txt", "first")
	require.NoError(t, err)
	_, err = store.AppendText(NamespaceDirect, "notes.txt", "second")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", string(data))
}

func TestRemove(t *testing.T) {
	store := newTestContentStore(t)
	_, err := store.AppendText(NamespaceDirect, "a.txt", "a")
	require.NoError(t, err)

	require.NoError(t, store.Remove(NamespaceDirect, "a.txt"))
	err = store.Remove(NamespaceDirect, "a.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.ErrorIs(t, store.Remove(NamespaceDirect, PlaceholderName), ErrReservedFile)
}

func TestRemoveAllKeepsPlaceholder(t *testing.T) {
	store := newTestContentStore(t)
	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := store.AppendText(NamespaceWebhook, name, name)
		require.NoError(t, err)
	}

	n, err := store.RemoveAll(NamespaceWebhook)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := store.List(NamespaceWebhook)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.FileExists(t, filepath.Join(mustDir(t, store, NamespaceWebhook), PlaceholderName))
}

func TestRemoveAllRecreatesMissingDirectory(t *testing.T) {
	store := newTestContentStore(t)
	dir := mustDir(t, store, NamespaceDirect)
	require.NoError(t, os.RemoveAll(dir))

	n, err := store.RemoveAll(NamespaceDirect)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, filepath.Join(dir, PlaceholderName))
}

func TestContentPathsSkipsHiddenAndDirectories(t *testing.T) {
	store := newTestContentStore(t)
	dir := mustDir(t, store, NamespaceDirect)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-x-c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	paths, err := store.ContentPaths(NamespaceDirect)
	require.NoError(t, err)
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"a.txt", "b.txt", PlaceholderName}, names)

	listed, err := store.List(NamespaceDirect)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, listed)
}
