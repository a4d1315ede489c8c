package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"ferry/internal/logging"
	"ferry/internal/queue"
)

var (
	// ErrEmptyBatch rejects submissions carrying no payloads.
	ErrEmptyBatch = errors.New("batch has no payloads")
	// ErrQueueFull rejects submissions while too many batches are unfinished.
	ErrQueueFull = errors.New("too many unfinished batches")
	// ErrPayloadTooLarge rejects a payload above the configured limit.
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")
	// ErrBatchNotFound reports an unknown batch id.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrNotRetryable reports a retry on a batch that is not partial_error.
	ErrNotRetryable = errors.New("batch is not in partial_error state")
)

// Submission is one payload offered to AddBatch. MimeType may be empty; it is
// then detected from the content.
type Submission struct {
	Name     string
	MimeType string
	Data     []byte
}

// AddBatch persists the payloads and enqueues a new batch. It returns only
// after every payload reached the payload store, so a crash immediately after
// submission cannot lose the batch.
func (m *Manager) AddBatch(ctx context.Context, destinationMeta map[string]string, files []Submission) (string, error) {
	if len(files) == 0 {
		return "", ErrEmptyBatch
	}
	for _, file := range files {
		if int64(len(file.Data)) > m.cfg.Uploader.MaxPayloadBytes {
			return "", fmt.Errorf("%w: %s is %d bytes, limit %d",
				ErrPayloadTooLarge, file.Name, len(file.Data), m.cfg.Uploader.MaxPayloadBytes)
		}
	}

	batch := &queue.Batch{
		ID:              uuid.NewString(),
		Status:          queue.BatchPending,
		DestinationMeta: cloneMeta(destinationMeta),
		CreatedAt:       time.Now().UTC(),
	}
	for _, file := range files {
		mime := file.MimeType
		if mime == "" {
			mime = mimetype.Detect(file.Data).String()
		}
		batch.Items = append(batch.Items, &queue.Item{
			ID:           uuid.NewString(),
			OriginalName: file.Name,
			MimeType:     mime,
			Status:       queue.StatusPending,
			Payload:      queue.ResidentPayload(file.Data),
		})
	}
	batch.Recount()

	m.mu.Lock()
	unfinished := 0
	for _, existing := range m.batches {
		if existing.Status == queue.BatchPending || existing.Status == queue.BatchProcessing {
			unfinished++
		}
	}
	if unfinished >= m.cfg.Uploader.MaxPendingBatches {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %d in flight, limit %d",
			ErrQueueFull, unfinished, m.cfg.Uploader.MaxPendingBatches)
	}

	for i, item := range batch.Items {
		if err := m.payloads.Put(item.ID, files[i].Data); err != nil {
			// Rejecting the batch: reclaim the payloads already persisted
			// for it, or they would be orphaned with no item to own them.
			for _, stored := range batch.Items[:i] {
				_ = m.payloads.Delete(stored.ID)
			}
			m.mu.Unlock()
			return "", fmt.Errorf("persist payload %s: %w", item.OriginalName, err)
		}
	}

	// Newest first: display order doubles as the scheduler's scan order.
	m.batches = append([]*queue.Batch{batch}, m.batches...)
	m.persistLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.kick()
	m.logger.Info("batch submitted",
		logging.String("batch_id", batch.ID),
		logging.Int("items", len(batch.Items)),
	)
	return batch.ID, nil
}

// Retry resets every failed item of a partial_error batch back to pending and
// requeues the batch. Successful items are untouched.
func (m *Manager) Retry(batchID string) error {
	m.mu.Lock()
	batch := m.batchByIDLocked(batchID)
	if batch == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if batch.Status != queue.BatchPartialError {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotRetryable, batchID, batch.Status)
	}

	retried := 0
	for _, item := range batch.Items {
		if item.Status == queue.StatusError {
			item.ResetForRetry()
			retried++
		}
	}
	batch.Status = queue.BatchPending
	batch.Recount()
	m.persistLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.kick()
	m.logger.Info("batch retry requested",
		logging.String("batch_id", batchID),
		logging.Int("items", retried),
	)
	return nil
}

// Remove drops a batch from the collection unconditionally, with best-effort
// payload cleanup.
func (m *Manager) Remove(batchID string) error {
	m.mu.Lock()
	index := -1
	for i, batch := range m.batches {
		if batch.ID == batchID {
			index = i
			break
		}
	}
	if index < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	removed := m.batches[index]
	m.batches = append(m.batches[:index], m.batches[index+1:]...)
	for _, item := range removed.Items {
		_ = m.payloads.Delete(item.ID)
	}
	m.persistLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.logger.Info("batch removed", logging.String("batch_id", batchID))
	return nil
}

// ClearCompleted removes every terminal batch, retaining unfinished ones.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	kept := m.batches[:0]
	cleared := 0
	for _, batch := range m.batches {
		if batch.Status == queue.BatchCompleted || batch.Status == queue.BatchPartialError {
			for _, item := range batch.Items {
				_ = m.payloads.Delete(item.ID)
			}
			cleared++
			continue
		}
		kept = append(kept, batch)
	}
	m.batches = kept
	m.persistLocked()
	m.publishLocked()
	m.mu.Unlock()

	if cleared > 0 {
		m.logger.Info("cleared completed batches", logging.Int("count", cleared))
	}
	return cleared
}

// ClearAll empties the collection and wipes the metadata store.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	cleared := len(m.batches)
	for _, batch := range m.batches {
		for _, item := range batch.Items {
			_ = m.payloads.Delete(item.ID)
		}
	}
	m.batches = nil
	if err := m.store.Clear(context.Background()); err != nil {
		m.logger.Warn("clear queue snapshot failed", logging.Error(err))
	}
	m.publishLocked()
	m.mu.Unlock()

	m.logger.Info("cleared all batches", logging.Int("count", cleared))
	return cleared
}

func cloneMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	cp := make(map[string]string, len(meta))
	for key, value := range meta {
		cp[key] = value
	}
	return cp
}
