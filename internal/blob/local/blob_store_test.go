package local

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStore_PutAndGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/abc/page.html", "text/html", []byte("<html>hi</html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))
	require.Contains(t, uri, filepath.Join(dir, "runs", "abc", "page.html"))

	data, err := store.GetObject(context.Background(), "runs/abc/page.html")
	require.NoError(t, err)
	require.Equal(t, []byte("<html>hi</html>"), data)
}

func TestBlobStore_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.txt", "", []byte("nope"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "", "", []byte("nope"))
	require.Error(t, err)
}

func TestBlobStore_MissingObject(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "does/not/exist")
	require.Error(t, err)
}

func TestNew_RequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
