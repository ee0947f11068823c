package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/audio-relay/internal/domain"
	"github.com/ondrasimku/audio-relay/internal/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Forwarder accepts uploads for best-effort delivery downstream.
type Forwarder interface {
	Submit(u domain.Upload) error
}

type UploadOptions struct {
	// MaxSize is the body limit in bytes; zero disables it.
	MaxSize int64
	// Storage is nil when local save is disabled.
	Storage storage.Storage
	// Forwarder is nil when no webhook is configured.
	Forwarder Forwarder
	Now       func() time.Time
}

type UploadHandler struct {
	maxSize   int64
	storage   storage.Storage
	forwarder Forwarder
	now       func() time.Time
	logger    *slog.Logger
}

func NewUploadHandler(opts UploadOptions, logger *slog.Logger) *UploadHandler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &UploadHandler{
		maxSize:   opts.MaxSize,
		storage:   opts.Storage,
		forwarder: opts.Forwarder,
		now:       now,
		logger:    logger,
	}
}

type UploadResponse struct {
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	SavedPath string `json:"saved_path,omitempty"`
}

func (h *UploadHandler) Upload(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if h.maxSize > 0 {
		body = io.LimitReader(c.Request.Body, h.maxSize+1)
	}

	content, err := io.ReadAll(body)
	if err != nil {
		h.logger.Warn("Failed to read request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to read request body",
			Details: err.Error(),
		})
		return
	}

	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "No content in request body",
		})
		return
	}

	if h.maxSize > 0 && int64(len(content)) > h.maxSize {
		h.logger.Warn("File too large", "max", h.maxSize)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "File too large",
			Details: fmt.Sprintf("maximum size is %d bytes", h.maxSize),
		})
		return
	}

	upload := domain.NewUpload(h.now(), content)

	if h.storage != nil {
		info, err := h.storage.Save(c.Request.Context(), bytes.NewReader(content), storage.SaveOptions{
			Name:        upload.Filename,
			ContentType: domain.ContentType,
		})
		if err != nil {
			h.logger.Error("Failed to save file", "filename", upload.Filename, "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to save file",
			})
			return
		}
		upload.Path = info.Path
		h.logger.Info("Saved raw upload file", "filename", upload.Filename, "size", upload.Size)
	}

	if h.forwarder != nil {
		if err := h.forwarder.Submit(upload); err != nil {
			h.logger.Warn("Upload not queued for forwarding", "filename", upload.Filename, "error", err)
		}
	}

	c.JSON(http.StatusOK, UploadResponse{
		Message:   "Raw file uploaded successfully",
		Filename:  upload.Filename,
		SizeBytes: upload.Size,
		SavedPath: upload.Path,
	})
}
