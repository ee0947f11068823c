package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TimestampLayout = "20060102_150405"
	FileExtension   = ".m4a"
	ContentType     = "audio/mp4"

	suffixLength = 8
)

// Upload is one received audio body. It lives only for the request
// and the forward it triggers.
type Upload struct {
	Filename   string
	Content    []byte
	Size       int64
	Path       string // set only when saved locally
	ReceivedAt time.Time
}

func NewUpload(receivedAt time.Time, content []byte) Upload {
	return Upload{
		Filename:   NewFilename(receivedAt),
		Content:    content,
		Size:       int64(len(content)),
		ReceivedAt: receivedAt,
	}
}

// NewFilename returns <YYYYMMDD_HHMMSS>_<8 hex chars>.m4a. Two calls in
// the same second differ only by the random suffix.
func NewFilename(t time.Time) string {
	return t.Format(TimestampLayout) + "_" + uuid.NewString()[:suffixLength] + FileExtension
}

// Saved reports whether the upload was written to local storage.
func (u Upload) Saved() bool {
	return u.Path != ""
}
