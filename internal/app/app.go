package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/ondrasimku/audio-relay/internal/auth"
	"github.com/ondrasimku/audio-relay/internal/config"
	"github.com/ondrasimku/audio-relay/internal/forward"
	relayhttp "github.com/ondrasimku/audio-relay/internal/http"
	"github.com/ondrasimku/audio-relay/internal/http/handler"
	relaylambda "github.com/ondrasimku/audio-relay/internal/lambda"
	"github.com/ondrasimku/audio-relay/internal/storage/local"
)

// App holds the wired components shared by the server and Lambda
// entrypoints.
type App struct {
	Router *gin.Engine
	// Dispatcher is nil when forwarding is disabled.
	Dispatcher *forward.Dispatcher
}

// New wires storage, forwarding and auth from cfg and starts the
// dispatcher.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	gin.SetMode(cfg.Server.GinMode)

	// The upload folder exists even when local save is off.
	if err := os.MkdirAll(cfg.Upload.Folder, 0o755); err != nil {
		return nil, fmt.Errorf("create upload folder: %w", err)
	}

	uploadOpts := handler.UploadOptions{MaxSize: cfg.MaxFileSize()}

	var files forward.FileOpener
	if cfg.Upload.SaveLocal {
		store, err := local.NewLocalStorage(cfg.Upload.Folder)
		if err != nil {
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
		uploadOpts.Storage = store
		files = store
		logger.Info("Local save enabled", "folder", store.Dir())
	}

	a := &App{}

	if cfg.ForwardingEnabled() {
		client, err := forward.NewClient(forward.ClientConfig{
			WebhookURL: cfg.Forward.WebhookURL,
			APIURL:     cfg.Forward.APIURL,
			Timeout:    cfg.ForwardTimeout(),
			CABundle:   cfg.Forward.CABundle,
		}, files)
		if err != nil {
			return nil, fmt.Errorf("initialize forward client: %w", err)
		}

		d := forward.NewDispatcher(forward.DispatcherConfig{
			Workers:   cfg.Forward.Workers,
			QueueSize: cfg.Forward.QueueSize,
			Timeout:   cfg.ForwardTimeout(),
		}, client, logger)
		if err := d.Start(ctx); err != nil {
			return nil, err
		}
		a.Dispatcher = d
		uploadOpts.Forwarder = d
	} else {
		logger.Warn("N8N_WEBHOOK_URL is not set, uploads will not be forwarded")
	}

	routerOpts := relayhttp.RouterOptions{Upload: uploadOpts}
	if cfg.AuthEnabled() {
		keys := auth.NewJWKSClient(cfg.Auth.JWKSUrl, cfg.Auth.JWKSCacheTTL)
		routerOpts.Verifier = auth.NewVerifier(keys, auth.Config{
			JWKSUrl:      cfg.Auth.JWKSUrl,
			Issuer:       cfg.Auth.Issuer,
			Audience:     cfg.Auth.Audience,
			JWKSCacheTTL: cfg.Auth.JWKSCacheTTL,
		})
		routerOpts.RequiredPermission = cfg.Auth.RequiredPermission
		logger.Info("Upload authentication enabled", "jwks_url", cfg.Auth.JWKSUrl)
	}

	a.Router = relayhttp.NewRouter(routerOpts, logger)
	return a, nil
}

// Waiter is nil when forwarding is disabled.
func (a *App) Waiter() relaylambda.Waiter {
	if a.Dispatcher == nil {
		return nil
	}
	return a.Dispatcher
}

// Stop drains pending forwards.
func (a *App) Stop(ctx context.Context) error {
	if a.Dispatcher == nil {
		return nil
	}
	return a.Dispatcher.Stop(ctx)
}
