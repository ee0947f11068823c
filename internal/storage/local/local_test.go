package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrasimku/audio-relay/internal/storage"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestNewLocalStorageCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")

	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, s.Dir())
}

func TestSaveWritesVerbatim(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	content := []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}
	info, err := s.Save(context.Background(), bytes.NewReader(content), storage.SaveOptions{
		Name:        "20260101_101010_deadbeef.m4a",
		ContentType: "audio/mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, "20260101_101010_deadbeef.m4a", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "audio/mp4", info.ContentType)

	written, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, content, written)
}

func TestSaveRecreatesRemovedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	_, err = s.Save(context.Background(), bytes.NewReader([]byte("abc")), storage.SaveOptions{Name: "a.m4a"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "a.m4a"))
	assert.NoError(t, err)
}

func TestSaveStripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	info, err := s.Save(context.Background(), bytes.NewReader([]byte("x")), storage.SaveOptions{Name: "../../escape.m4a"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "uploads", "escape.m4a"), info.Path)
}

func TestSaveRejectsInvalidNames(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "/"} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Save(context.Background(), bytes.NewReader(nil), storage.SaveOptions{Name: name})
			assert.ErrorIs(t, err, storage.ErrInvalidName)
		})
	}
}

func TestSaveRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), failingReader{}, storage.SaveOptions{Name: "broken.m4a"})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "broken.m4a"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), bytes.NewReader([]byte("audio")), storage.SaveOptions{Name: "clip.m4a"})
	require.NoError(t, err)

	f, info, err := s.Open(context.Background(), "clip.m4a")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "audio/mp4", info.ContentType)
}

func TestOpenMissing(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Open(context.Background(), "nope.m4a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
