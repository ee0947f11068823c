package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ondrasimku/audio-relay/internal/storage"
)

type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) Dir() string {
	return s.baseDir
}

// Save writes r verbatim to <baseDir>/<name>. The directory is created
// again on every call since it may have been removed while running.
func (s *LocalStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	name, err := cleanName(opts.Name)
	if err != nil {
		return storage.FileInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.FileInfo{}, err
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	filePath := filepath.Join(s.baseDir, name)
	file, err := os.Create(filePath)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		os.Remove(filePath)
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return storage.FileInfo{}, fmt.Errorf("failed to close file: %w", err)
	}

	return storage.FileInfo{
		Name:        name,
		Path:        filePath,
		ContentType: opts.ContentType,
		Size:        size,
	}, nil
}

func (s *LocalStorage) Open(ctx context.Context, name string) (io.ReadSeekCloser, storage.FileInfo, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, storage.FileInfo{}, err
	}

	filePath := filepath.Join(s.baseDir, name)
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.FileInfo{}, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return nil, storage.FileInfo{}, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	return file, storage.FileInfo{
		Name:        name,
		Path:        filePath,
		ContentType: contentTypeFor(name),
		Size:        stat.Size(),
	}, nil
}

// cleanName strips any directory part so writes stay under baseDir.
func cleanName(name string) (string, error) {
	clean := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if clean == "." || clean == ".." || clean == "/" || clean == "" {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidName, name)
	}
	return clean, nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
