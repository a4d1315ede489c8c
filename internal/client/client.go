// Package client implements the HTTP client the ferry CLI uses to talk to a
// running daemon's API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ferry/internal/api"
)

// ErrNotFound reports a missing batch.
var ErrNotFound = errors.New("batch not found")

// Client talks to the ferry daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a client for the given daemon address, e.g. "127.0.0.1:7519"
// or a full http:// URL.
func New(addr, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &status)
	return status, err
}

// ListBatches returns all batches, newest first.
func (c *Client) ListBatches(ctx context.Context) ([]api.BatchView, error) {
	var resp api.BatchListResponse
	if err := c.do(ctx, http.MethodGet, "/api/batches", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// DescribeBatch returns a single batch by id.
func (c *Client) DescribeBatch(ctx context.Context, id string) (api.BatchView, error) {
	var resp api.BatchResponse
	err := c.do(ctx, http.MethodGet, "/api/batches/"+id, nil, "", &resp)
	return resp.Batch, err
}

// Submit uploads the named files as one batch and returns the batch id.
func (c *Client) Submit(ctx context.Context, paths []string, meta map[string]string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range meta {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("encode metadata: %w", err)
		}
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		part, err := writer.CreatePart(filePartHeader(filepath.Base(path)))
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", path, err)
		}
		if _, err := part.Write(data); err != nil {
			return "", fmt.Errorf("encode %s: %w", path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}

	var resp api.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/batches", body, writer.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.BatchID, nil
}

// Retry requeues the failed items of a partially failed batch.
func (c *Client) Retry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/batches/"+id+"/retry", nil, "", nil)
}

// Remove deletes a batch regardless of state.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/batches/"+id, nil, "", nil)
}

// ClearCompleted removes finished batches and reports how many were dropped.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp api.ClearedResponse
	err := c.do(ctx, http.MethodPost, "/api/batches/clear-completed", nil, "", &resp)
	return resp.Cleared, err
}

// ClearAll removes every batch and reports how many were dropped.
func (c *Client) ClearAll(ctx context.Context) (int, error) {
	var resp api.ClearedResponse
	err := c.do(ctx, http.MethodPost, "/api/batches/clear-all", nil, "", &resp)
	return resp.Cleared, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if c.baseURL == "" {
		return errors.New("daemon address is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errorMessage(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var apiErr api.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return apiErr.Error
		}
	}
	return fmt.Sprintf("daemon returned %s", resp.Status)
}

func filePartHeader(name string) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", "application/octet-stream")
	return header
}
