package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/audio-relay/internal/auth"
	"github.com/ondrasimku/audio-relay/internal/http/handler"
)

type RouterOptions struct {
	Upload handler.UploadOptions
	// Verifier guards the upload route when set.
	Verifier           auth.TokenVerifier
	RequiredPermission string
}

func NewRouter(opts RouterOptions, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	healthHandler := handler.NewHealthHandler()
	uploadHandler := handler.NewUploadHandler(opts.Upload, logger)

	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.Health)

	uploadChain := []gin.HandlerFunc{}
	if opts.Verifier != nil {
		uploadChain = append(uploadChain,
			auth.Middleware(opts.Verifier, logger),
			auth.RequirePermission(opts.RequiredPermission),
		)
	}
	uploadChain = append(uploadChain, uploadHandler.Upload)
	router.POST("/upload-audio", uploadChain...)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
