package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStorage(root, "/files/")
	ctx := context.Background()

	key, err := s.Upload(ctx, "attachments", "/notes/12/photo.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/notes/12/photo.jpg", key)
	assert.FileExists(t, filepath.Join(root, "attachments", "notes", "12", "photo.jpg"))

	rc, err := s.Download(ctx, "attachments", "notes/12/photo.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg", string(data))

	_, err = s.Upload(ctx, "attachments", "notes/12/photo.jpg", strings.NewReader("png"))
	require.NoError(t, err, "uploads replace existing objects")

	require.NoError(t, s.Remove(ctx, "attachments", "notes/12/photo.jpg", "notes/12/missing.jpg"))
	_, err = os.Stat(filepath.Join(root, "attachments", "notes", "12"))
	assert.True(t, os.IsNotExist(err), "empty parent directories are removed")

	_, err = s.Download(ctx, "attachments", "notes/12/photo.jpg")
	assert.Error(t, err)
}

func TestLocalStorage_StaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStorage(filepath.Join(root, "store"), "/files")
	ctx := context.Background()

	key, err := s.Upload(ctx, "attachments", "../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/escape.txt", key)
	assert.NoFileExists(t, filepath.Join(root, "escape.txt"))
	assert.FileExists(t, filepath.Join(root, "store", "attachments", "escape.txt"))

	for _, bucket := range []string{"", "..", "a/b", `a\b`} {
		_, err := s.Upload(ctx, bucket, "f.txt", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, bucket)
	}
	_, err = s.Upload(ctx, "attachments", "/", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStorage_PublicURL(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), "/files/")
	assert.Equal(t, "/files/attachments/notes/a.txt", s.PublicURL("attachments", "/notes/a.txt"))
}
