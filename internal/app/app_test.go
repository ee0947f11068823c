package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrasimku/audio-relay/internal/config"
	applog "github.com/ondrasimku/audio-relay/internal/log"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Addr: ":0", GinMode: "test", ShutdownTimeoutSeconds: 5},
		Upload: config.UploadConfig{Folder: filepath.Join(t.TempDir(), "uploads"), MaxFileSizeMB: 1},
		Forward: config.ForwardConfig{
			TimeoutSeconds: 5,
			Workers:        1,
			QueueSize:      4,
		},
	}
}

func stop(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
}

func TestNewWithoutForwarding(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, applog.Discard())
	require.NoError(t, err)
	defer stop(t, a)

	assert.Nil(t, a.Dispatcher)
	assert.Nil(t, a.Waiter())
	assert.DirExists(t, cfg.Upload.Folder)

	req := httptest.NewRequest(http.MethodPost, "/upload-audio", bytes.NewReader([]byte("audio")))
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	entries, err := os.ReadDir(cfg.Upload.Folder)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewSavesAndForwards(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer hook.Close()

	cfg := testConfig(t)
	cfg.Upload.SaveLocal = true
	cfg.Forward.WebhookURL = hook.URL

	a, err := New(context.Background(), cfg, applog.Discard())
	require.NoError(t, err)
	require.NotNil(t, a.Dispatcher)
	require.NotNil(t, a.Waiter())

	req := httptest.NewRequest(http.MethodPost, "/upload-audio", bytes.NewReader([]byte("audio")))
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	stop(t, a)
	assert.Equal(t, int32(1), hits.Load())

	entries, err := os.ReadDir(cfg.Upload.Folder)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewRequiresTokenWhenAuthEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{JWKSUrl: "http://127.0.0.1:1/jwks", Issuer: "http://issuer"}

	a, err := New(context.Background(), cfg, applog.Discard())
	require.NoError(t, err)
	defer stop(t, a)

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload-audio", bytes.NewReader([]byte("audio"))))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewBadCABundle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Forward.WebhookURL = "https://example.com/hook"
	cfg.Forward.CABundle = filepath.Join(t.TempDir(), "missing.pem")

	_, err := New(context.Background(), cfg, applog.Discard())
	assert.Error(t, err)
}
