package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/ondrasimku/audio-relay/internal/app"
	"github.com/ondrasimku/audio-relay/internal/config"
	"github.com/ondrasimku/audio-relay/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.Log.Level, cfg.Log.Format)

	relay, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           relay.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting audio upload service",
			"addr", cfg.Server.Addr,
			"max_file_size", cfg.MaxFileSize(),
			"save_local", cfg.Upload.SaveLocal,
			"forwarding", cfg.ForwardingEnabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// The server stops accepting uploads first; the dispatcher then drains
	// whatever was already accepted.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout(),
		map[string]gfshutdown.Operation{
			"audio-relay": func(ctx context.Context) error {
				logger.Info("Shutting down server")
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("Server forced to shutdown", "error", err)
					return err
				}
				return relay.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
