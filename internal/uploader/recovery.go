package uploader

import (
	"context"

	"ferry/internal/logging"
	"ferry/internal/queue"
)

// recover rebuilds the batch collection from the persisted snapshot. Items
// left "processing" are demoted to pending: no worker survives a restart, so
// that state cannot be live. Payload bytes stay in the payload store; every
// recovered item carries only a placeholder handle.
func (m *Manager) recover(ctx context.Context) {
	batches, err := m.store.LoadSnapshot(ctx)
	if err != nil {
		m.logger.Warn("load queue snapshot failed, starting empty", logging.Error(err))
		return
	}
	if len(batches) == 0 {
		return
	}

	demotedItems := 0
	demotedBatches := 0
	for _, batch := range batches {
		for _, item := range batch.Items {
			if item.Status == queue.StatusProcessing {
				item.Status = queue.StatusPending
				item.ErrorKind = queue.ErrorKindNone
				item.ErrorMessage = ""
				demotedItems++
			}
		}
		if batch.Status == queue.BatchProcessing {
			batch.Status = queue.BatchPending
			demotedBatches++
		}
		batch.Recount()
	}

	m.mu.Lock()
	m.batches = batches
	m.persistLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.logger.Info("queue recovered",
		logging.Int("batches", len(batches)),
		logging.Int("demoted_items", demotedItems),
		logging.Int("demoted_batches", demotedBatches),
	)
}
