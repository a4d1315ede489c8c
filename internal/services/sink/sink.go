package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"ferry/internal/config"
	"ferry/internal/services"
)

// Request carries one processed payload plus its destination metadata.
type Request struct {
	Data     []byte
	FileName string
	MimeType string
	// Meta is the batch's destination metadata, passed through opaquely as
	// form fields.
	Meta map[string]string
}

// Service accepts processed payloads and reports success or failure.
type Service interface {
	Upload(ctx context.Context, req Request) error
}

// HTTPDoer describes the HTTP client used by the sink service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client uploads payloads to an HTTP sink as multipart form data.
type Client struct {
	url    string
	token  string
	client HTTPDoer
}

// NewFromConfig returns the configured sink client.
func NewFromConfig(cfg *config.Config) *Client {
	if cfg == nil {
		return NewClient("", "", nil)
	}
	return NewClient(cfg.Sink.URL, cfg.Sink.Token, http.DefaultClient)
}

// NewClient constructs an HTTP-backed sink client.
func NewClient(url, token string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		url:    strings.TrimRight(strings.TrimSpace(url), "/"),
		token:  strings.TrimSpace(token),
		client: client,
	}
}

// response is the sink's JSON reply. A 200 with success=false is still a
// failure; a 200 whose body omits the field entirely is a success, so the
// pointer distinguishes absent from false.
type response struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) Upload(ctx context.Context, req Request) error {
	if c.url == "" {
		return services.Wrap(services.ErrUpload, "upload", "sink url not configured", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range req.Meta {
		if err := writer.WriteField(key, value); err != nil {
			return services.Wrap(services.ErrUpload, "upload", "encode metadata field", err)
		}
	}
	part, err := writer.CreateFormFile("file", req.FileName)
	if err != nil {
		return services.Wrap(services.ErrUpload, "upload", "encode payload part", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return services.Wrap(services.ErrUpload, "upload", "encode payload part", err)
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrUpload, "upload", "finalize multipart body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return services.Wrap(services.ErrUpload, "upload", "build request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrUpload, "upload", "upload sink timed out", services.ErrTimeout)
		}
		return services.Wrap(services.ErrUpload, "upload", "upload sink unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return services.Wrap(services.ErrUpload, "upload", "read sink response", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := fmt.Sprintf("sink returned %d", resp.StatusCode)
		if snippet := strings.TrimSpace(string(payload)); snippet != "" {
			msg = fmt.Sprintf("%s: %s", msg, truncate(snippet, 200))
		}
		return services.Wrap(services.ErrUpload, "upload", msg, nil)
	}

	var parsed response
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Success != nil && !*parsed.Success {
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = "sink reported failure"
		}
		return services.Wrap(services.ErrUpload, "upload", msg, nil)
	}
	return nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
