package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ServiceID      = "audio-upload-service"
	ServiceName    = "Audio Upload Service"
	ServiceVersion = "1.0.0"
)

var endpoints = []string{
	"POST /upload-audio - Upload audio file",
	"GET /health - Health check",
	"GET / - This endpoint",
}

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceID,
	})
}

func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   ServiceName,
		"version":   ServiceVersion,
		"endpoints": endpoints,
	})
}
