package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrasimku/audio-relay/internal/auth"
	"github.com/ondrasimku/audio-relay/internal/forward"
	relayhttp "github.com/ondrasimku/audio-relay/internal/http"
	"github.com/ondrasimku/audio-relay/internal/http/handler"
	applog "github.com/ondrasimku/audio-relay/internal/log"
)

type staticVerifier struct {
	token       string
	permissions []string
}

func (v staticVerifier) Verify(ctx context.Context, token string) (*auth.Principal, error) {
	if token != v.token {
		return nil, errors.New("bad token")
	}
	return &auth.Principal{Subject: "uploader", Permissions: v.permissions}, nil
}

func newDispatcher(t *testing.T, webhookURL string, timeout time.Duration) *forward.Dispatcher {
	t.Helper()
	client, err := forward.NewClient(forward.ClientConfig{WebhookURL: webhookURL, Timeout: timeout}, nil)
	require.NoError(t, err)

	d := forward.NewDispatcher(forward.DispatcherConfig{Workers: 1, QueueSize: 8, Timeout: timeout}, client, applog.Discard())
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func upload(router http.Handler, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload-audio", bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterForwardsToWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var mu sync.Mutex
	var got []byte
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		mu.Lock()
		got = data
		mu.Unlock()
	}))
	defer hook.Close()

	d := newDispatcher(t, hook.URL, 5*time.Second)
	router := relayhttp.NewRouter(relayhttp.RouterOptions{
		Upload: handler.UploadOptions{MaxSize: 1 << 20, Forwarder: d},
	}, applog.Discard())

	w := upload(router, []byte("journal entry audio"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("journal entry audio"), got)
}

func TestRouterUnreachableWebhookStillSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	d := newDispatcher(t, "http://127.0.0.1:1/webhook", time.Second)
	router := relayhttp.NewRouter(relayhttp.RouterOptions{
		Upload: handler.UploadOptions{MaxSize: 1 << 20, Forwarder: d},
	}, applog.Discard())

	body := bytes.Repeat([]byte{1, 2, 3}, 100)
	w := upload(router, body, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handler.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(300), resp.SizeBytes)
	assert.NotEmpty(t, resp.Filename)
}

func TestRouterSlowWebhookDoesNotDelayResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	release := make(chan struct{})
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer hook.Close()
	defer close(release)

	d := newDispatcher(t, hook.URL, 200*time.Millisecond)
	router := relayhttp.NewRouter(relayhttp.RouterOptions{
		Upload: handler.UploadOptions{Forwarder: d},
	}, applog.Discard())

	start := time.Now()
	w := upload(router, []byte("audio"), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRouterPublicRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := relayhttp.NewRouter(relayhttp.RouterOptions{
		Verifier: staticVerifier{token: "secret"},
	}, applog.Discard())

	for _, path := range []string{"/", "/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouterUploadAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		verifier       staticVerifier
		permission     string
		authHeader     string
		expectedStatus int
	}{
		{"missing token", staticVerifier{token: "secret"}, "", "", http.StatusUnauthorized},
		{"wrong token", staticVerifier{token: "secret"}, "", "Bearer nope", http.StatusUnauthorized},
		{"valid token", staticVerifier{token: "secret"}, "", "Bearer secret", http.StatusOK},
		{"missing permission", staticVerifier{token: "secret"}, "audio:upload", "Bearer secret", http.StatusForbidden},
		{"has permission", staticVerifier{token: "secret", permissions: []string{"audio:upload"}}, "audio:upload", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := relayhttp.NewRouter(relayhttp.RouterOptions{
				Verifier:           tt.verifier,
				RequiredPermission: tt.permission,
			}, applog.Discard())

			header := http.Header{}
			if tt.authHeader != "" {
				header.Set("Authorization", tt.authHeader)
			}
			w := upload(router, []byte("audio"), header)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
