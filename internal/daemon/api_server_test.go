package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ferry/internal/api"
	"ferry/internal/blobstore"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/services/sink"
	"ferry/internal/services/transform"
	"ferry/internal/testsupport"
	"ferry/internal/uploader"
)

type sinkStub struct{ err error }

func (s sinkStub) Upload(context.Context, sink.Request) error { return s.err }

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) *Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	payloads := blobstore.Open(cfg.PayloadDBPath(), logging.NewNop())
	t.Cleanup(func() { _ = payloads.Close() })

	mgr := uploader.New(cfg, store, payloads, transform.Passthrough{}, sinkStub{}, logging.NewNop())
	d, err := New(cfg, store, payloads, mgr, logging.NewNop())
	if err != nil {
		t.Fatalf("New daemon failed: %v", err)
	}
	return d
}

func multipartBody(t *testing.T, meta map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range meta {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, data := range files {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func submitBatch(t *testing.T, srv *apiServer, meta map[string]string, files map[string][]byte) string {
	t.Helper()

	body, contentType := multipartBody(t, meta, files)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleBatches(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 Accepted, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.BatchID == "" {
		t.Fatal("expected non-empty batch id")
	}
	return resp.BatchID
}

func TestAPIServerSubmitAndList(t *testing.T) {
	d := newTestDaemon(t)
	id := submitBatch(t, d.api, map[string]string{"category": "inbox"}, map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("beta"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	w := httptest.NewRecorder()
	d.api.handleBatches(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.BatchListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Batches) != 1 || list.Batches[0].ID != id {
		t.Fatalf("unexpected batch list: %+v", list)
	}
	if list.Batches[0].TotalCount != 2 || list.Batches[0].DestinationMeta["category"] != "inbox" {
		t.Fatalf("unexpected batch view: %+v", list.Batches[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil)
	w = httptest.NewRecorder()
	d.api.handleBatchPath(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK for describe, got %d", w.Code)
	}
	var one api.BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if one.Batch.Status != "pending" || len(one.Batch.Items) != 2 {
		t.Fatalf("unexpected batch: %+v", one.Batch)
	}
}

func TestAPIServerSubmitRejections(t *testing.T) {
	d := newTestDaemon(t, func(c *config.Config) {
		c.Uploader.MaxPayloadBytes = 8
	})

	body, contentType := multipartBody(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	d.api.handleBatches(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", w.Code)
	}

	body, contentType = multipartBody(t, nil, map[string][]byte{"big.bin": []byte("way past the limit")})
	req = httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	d.api.handleBatches(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize payload, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader("not multipart"))
	w = httptest.NewRecorder()
	d.api.handleBatches(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestAPIServerRetryAndRemove(t *testing.T) {
	d := newTestDaemon(t)
	id := submitBatch(t, d.api, nil, map[string][]byte{"a.txt": []byte("alpha")})

	// Retry of a pending batch conflicts.
	req := httptest.NewRequest(http.MethodPost, "/api/batches/"+id+"/retry", nil)
	w := httptest.NewRecorder()
	d.api.handleBatchPath(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending retry, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/batches/"+id, nil)
	w = httptest.NewRecorder()
	d.api.handleBatchPath(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for remove, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/batches/"+id, nil)
	w = httptest.NewRecorder()
	d.api.handleBatchPath(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing batch, got %d", w.Code)
	}
}

func TestAPIServerClearAll(t *testing.T) {
	d := newTestDaemon(t)
	submitBatch(t, d.api, nil, map[string][]byte{"a.txt": []byte("alpha")})
	submitBatch(t, d.api, nil, map[string][]byte{"b.txt": []byte("beta")})

	req := httptest.NewRequest(http.MethodPost, "/api/batches/clear-all", nil)
	w := httptest.NewRecorder()
	d.api.handleBatchPath(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ClearedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", resp.Cleared)
	}
}

func TestAPIServerStatus(t *testing.T) {
	d := newTestDaemon(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	d.api.handleStatus(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Running {
		t.Fatal("manager should not report running before Start")
	}
	if !status.Durable {
		t.Fatal("expected durable status with live stores")
	}
}

func TestAPIServerEventsStream(t *testing.T) {
	d := newTestDaemon(t)
	submitBatch(t, d.api, nil, map[string][]byte{"a.txt": []byte("alpha")})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	d.api.handleEvents(w, req)

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: snapshot") {
		t.Fatalf("expected snapshot event in stream, got %q", body)
	}
	if !strings.Contains(body, "a.txt") {
		t.Fatalf("expected batch content in stream, got %q", body)
	}
}

func TestRequireAuth(t *testing.T) {
	srv := &apiServer{}
	handler := srv.requireAuth("secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	var body api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("rejection body is not JSON: %v", err)
	}
	if body.Error != "unauthorized" {
		t.Fatalf("unexpected rejection message %q", body.Error)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}

	open := srv.requireAuth("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w = httptest.NewRecorder()
	open(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", w.Code)
	}
}
