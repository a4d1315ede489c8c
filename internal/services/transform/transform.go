package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ferry/internal/config"
	"ferry/internal/services"
)

// Service converts a raw payload into its upload-ready form.
type Service interface {
	Transform(ctx context.Context, payload []byte, mimeType string) ([]byte, error)
}

// HTTPDoer describes the HTTP client used by the transform service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewFromConfig returns the configured transform service. An empty URL yields
// a passthrough that returns payloads unmodified.
func NewFromConfig(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Transform.URL) == "" {
		return Passthrough{}
	}
	return NewClient(cfg.Transform.URL, http.DefaultClient)
}

// Passthrough returns payloads unchanged.
type Passthrough struct{}

func (Passthrough) Transform(_ context.Context, payload []byte, _ string) ([]byte, error) {
	return payload, nil
}

// Client posts payloads to an HTTP transform service and returns the
// transformed bytes from the response body.
type Client struct {
	url    string
	client HTTPDoer
}

// NewClient constructs an HTTP-backed transform service.
func NewClient(url string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{url: strings.TrimRight(strings.TrimSpace(url), "/"), client: client}
}

func (c *Client) Transform(ctx context.Context, payload []byte, mimeType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrTransform, "transform", "build request", err)
	}
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTransform, "transform", "transform service timed out", services.ErrTimeout)
		}
		return nil, services.Wrap(services.ErrTransform, "transform", "transform service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := readSnippet(resp.Body)
		msg := fmt.Sprintf("transform service returned %d", resp.StatusCode)
		if snippet != "" {
			msg = fmt.Sprintf("%s: %s", msg, snippet)
		}
		return nil, services.Wrap(services.ErrTransform, "transform", msg, nil)
	}

	transformed, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransform, "transform", "read transformed payload", err)
	}
	return transformed, nil
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
