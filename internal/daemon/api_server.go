package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"ferry/internal/api"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/uploader"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.requireAuth(token, srv.handleStatus))
	mux.HandleFunc("/api/batches", srv.requireAuth(token, srv.handleBatches))
	mux.HandleFunc("/api/batches/", srv.requireAuth(token, srv.handleBatchPath))
	mux.HandleFunc("/api/events", srv.requireAuth(token, srv.handleEvents))

	// No WriteTimeout: /api/events streams for the lifetime of the client.
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary := s.daemon.Manager().Status()
	s.writeJSON(w, http.StatusOK, api.FromStatusSummary(summary, os.Getpid()))
}

func (s *apiServer) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		batches := s.daemon.Manager().Snapshot()
		s.writeJSON(w, http.StatusOK, api.BatchListResponse{Batches: api.FromBatches(batches)})
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSubmit accepts a multipart form: every "file" part becomes a batch
// item, every other form value becomes destination metadata.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}

	maxPayload := s.daemon.cfg.Uploader.MaxPayloadBytes
	meta := make(map[string]string)
	var files []uploader.Submission
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed multipart form")
			return
		}

		if part.FormName() != "file" {
			value, err := io.ReadAll(io.LimitReader(part, 64<<10))
			_ = part.Close()
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "malformed form field")
				return
			}
			meta[part.FormName()] = string(value)
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxPayload+1))
		_ = part.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read file part")
			return
		}
		files = append(files, uploader.Submission{
			Name:     part.FileName(),
			MimeType: part.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	id, err := s.daemon.Manager().AddBatch(r.Context(), meta, files)
	if err != nil {
		s.writeError(w, submitStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{BatchID: id})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, uploader.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, uploader.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, uploader.ErrQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// handleBatchPath dispatches /api/batches/{id}, /api/batches/{id}/retry,
// /api/batches/clear-completed, and /api/batches/clear-all.
func (s *apiServer) handleBatchPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	switch rest {
	case "clear-completed":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.writeJSON(w, http.StatusOK, api.ClearedResponse{Cleared: s.daemon.Manager().ClearCompleted()})
		return
	case "clear-all":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.writeJSON(w, http.StatusOK, api.ClearedResponse{Cleared: s.daemon.Manager().ClearAll()})
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleDescribe(w, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleRemove(w, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetry(w, id)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, id string) {
	for _, batch := range s.daemon.Manager().Snapshot() {
		if batch.ID == id {
			s.writeJSON(w, http.StatusOK, api.BatchResponse{Batch: api.FromBatch(batch)})
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "batch not found")
}

func (s *apiServer) handleRemove(w http.ResponseWriter, id string) {
	if err := s.daemon.Manager().Remove(id); err != nil {
		if errors.Is(err, uploader.ErrBatchNotFound) {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, id string) {
	if err := s.daemon.Manager().Retry(id); err != nil {
		switch {
		case errors.Is(err, uploader.ErrBatchNotFound):
			s.writeError(w, http.StatusNotFound, "batch not found")
		case errors.Is(err, uploader.ErrNotRetryable):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

// handleEvents streams queue snapshots as server-sent events. Each update is
// one "snapshot" event carrying the full batch list.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := s.daemon.Manager().Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(api.BatchListResponse{Batches: api.FromBatches(snapshot)})
			if err != nil {
				s.log().Error("failed to encode event", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "api-server"))
	}
	return logging.NewNop()
}
