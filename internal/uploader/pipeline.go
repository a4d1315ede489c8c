package uploader

import (
	"context"
	"errors"

	"ferry/internal/logging"
	"ferry/internal/queue"
	"ferry/internal/services"
	"ferry/internal/services/sink"
)

// runPipeline executes resolve -> transform -> upload for one claimed item and
// applies the terminal bookkeeping. It never fails the manager: every error
// path terminates only this item.
func (m *Manager) runPipeline(ctx context.Context, batchID, itemID, originalName, mimeType string, handle queue.PayloadHandle, meta map[string]string) {
	defer m.wg.Done()

	err := m.processItem(ctx, itemID, originalName, mimeType, handle, meta)
	m.completeItem(batchID, itemID, err)
}

func (m *Manager) processItem(ctx context.Context, itemID, originalName, mimeType string, handle queue.PayloadHandle, meta map[string]string) error {
	payload, err := m.resolvePayload(itemID, handle)
	if err != nil {
		return err
	}

	transformCtx, cancelTransform := context.WithTimeout(ctx, m.stageTimeout)
	defer cancelTransform()
	transformed, err := m.transformer.Transform(transformCtx, payload, mimeType)
	if err != nil {
		return err
	}

	uploadCtx, cancelUpload := context.WithTimeout(ctx, m.stageTimeout)
	defer cancelUpload()
	return m.uploadSink.Upload(uploadCtx, sink.Request{
		Data:     transformed,
		FileName: originalName,
		MimeType: mimeType,
		Meta:     meta,
	})
}

// resolvePayload fetches the item's bytes, preferring the payload store over
// the in-memory handle. An empty handle with no stored payload is a
// durability-boundary failure, not an empty upload.
func (m *Manager) resolvePayload(itemID string, handle queue.PayloadHandle) ([]byte, error) {
	data, found, err := m.payloads.Get(itemID)
	if err != nil {
		m.logger.Warn("payload store read failed",
			logging.String("item_id", itemID),
			logging.Error(err),
		)
	}
	if found && len(data) > 0 {
		return data, nil
	}
	if resident, ok := handle.Resident(); ok {
		return resident, nil
	}
	return nil, services.Wrap(services.ErrPayloadLost, "resolve",
		"payload missing from store with no in-memory copy", nil)
}

// completeItem applies the terminal state for a finished pipeline. The batch
// and item are looked up by id at write time so concurrent removals of other
// batches cannot misdirect the update.
//
// A failure caused by the run context being canceled is not terminal: the
// manager is shutting down, and the item stays processing so the next start
// demotes it back to pending, same as after a crash.
func (m *Manager) completeItem(batchID, itemID string, stageErr error) {
	m.mu.Lock()

	batch := m.batchByIDLocked(batchID)
	var item *queue.Item
	if batch != nil {
		item = batch.ItemByID(itemID)
	}
	if item != nil {
		if stageErr != nil && errors.Is(stageErr, context.Canceled) {
			m.logger.Info("item interrupted by shutdown, will requeue on start",
				logging.String("batch_id", batchID),
				logging.String("item_id", itemID),
			)
			m.activeCount--
			delete(m.inFlight, itemID)
			m.mu.Unlock()
			return
		}
		if stageErr == nil {
			item.SetSucceeded()
			if err := m.payloads.Delete(itemID); err != nil {
				m.logger.Warn("delete uploaded payload failed",
					logging.String("item_id", itemID),
					logging.Error(err),
				)
			}
			m.logger.Info("item uploaded",
				logging.String("batch_id", batchID),
				logging.String("item_id", itemID),
			)
		} else {
			kind := services.Classify(stageErr)
			item.SetFailed(kind, services.Message(stageErr))
			// The payload stays in the store so a retry can reuse it.
			m.logger.Warn("item failed",
				logging.String("batch_id", batchID),
				logging.String("item_id", itemID),
				logging.String("kind", string(kind)),
				logging.Error(stageErr),
			)
		}
		batch.Recount()
		m.persistLocked()
		m.publishLocked()
	}

	m.activeCount--
	delete(m.inFlight, itemID)
	m.mu.Unlock()

	m.kick()
}
