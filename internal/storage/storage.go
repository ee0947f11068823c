package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

type SaveOptions struct {
	Name        string
	ContentType string
}

type FileInfo struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
}

type Storage interface {
	Save(ctx context.Context, r io.Reader, opts SaveOptions) (FileInfo, error)
	Open(ctx context.Context, name string) (io.ReadSeekCloser, FileInfo, error)
}
