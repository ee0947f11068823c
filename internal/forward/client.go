package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/ondrasimku/audio-relay/internal/domain"
	"github.com/ondrasimku/audio-relay/internal/storage"
)

const (
	fileField     = "file"
	filenameField = "filename"
	sizeField     = "size_bytes"
)

// FileOpener reads back a locally saved upload.
type FileOpener interface {
	Open(ctx context.Context, name string) (io.ReadSeekCloser, storage.FileInfo, error)
}

type ClientConfig struct {
	WebhookURL string
	APIURL     string
	Timeout    time.Duration
	CABundle   string
}

type Client struct {
	webhookURL string
	apiURL     string
	files      FileOpener
	httpClient *http.Client
}

// NewClient builds the outbound client. files may be nil when local
// save is disabled; the forward-API path is skipped in that case.
func NewClient(cfg ClientConfig, files FileOpener) (*Client, error) {
	tlsConfig, err := NewTLSConfig(cfg.CABundle)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &Client{
		webhookURL: cfg.WebhookURL,
		apiURL:     cfg.APIURL,
		files:      files,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Send notifies the webhook and, for saved uploads with a forward API
// configured, forwards the stored file as well.
func (c *Client) Send(ctx context.Context, u domain.Upload) error {
	var errs []error

	if err := c.Notify(ctx, u); err != nil {
		errs = append(errs, err)
	}

	if c.apiURL != "" && c.files != nil && u.Saved() {
		if err := c.ForwardFile(ctx, u.Filename); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Notify posts the upload bytes to the webhook.
func (c *Client) Notify(ctx context.Context, u domain.Upload) error {
	if c.webhookURL == "" {
		return errors.New("webhook url is not configured")
	}

	err := c.post(ctx, c.webhookURL, u.Filename, u.Size, bytes.NewReader(u.Content))
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	return nil
}

// ForwardFile reads a saved upload back from storage and posts it to
// the forward API.
func (c *Client) ForwardFile(ctx context.Context, name string) error {
	if c.apiURL == "" {
		return errors.New("forward api url is not configured")
	}
	if c.files == nil {
		return errors.New("no local storage to read from")
	}

	file, info, err := c.files.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("forward file: %w", err)
	}
	defer file.Close()

	if err := c.post(ctx, c.apiURL, info.Name, info.Size, file); err != nil {
		return fmt.Errorf("forward file to api: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, url, filename string, size int64, content io.Reader) error {
	body, contentType, err := encodeMultipart(filename, size, content)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func encodeMultipart(filename string, size int64, content io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(filenameField, filename); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := w.WriteField(sizeField, strconv.FormatInt(size, 10)); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(filename)))
	header.Set("Content-Type", domain.ContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
