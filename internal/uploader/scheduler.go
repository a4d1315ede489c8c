package uploader

import (
	"context"
	"time"

	"ferry/internal/logging"
	"ferry/internal/queue"
)

// run is the scheduling loop. It wakes on submissions, pipeline completions,
// and a periodic watchdog tick; every wake calls the same idempotent dispatch
// routine, so spurious wakes are harmless.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
		for m.dispatchOne(ctx) {
		}
	}
}

// kick wakes the scheduling loop without blocking. A wake already pending is
// enough; the dispatch routine drains all available work.
func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatchOne claims at most one eligible item and hands it to a pipeline
// goroutine. It returns true when an item was dispatched so the caller can
// immediately try to fill the next slot.
func (m *Manager) dispatchOne(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running || ctx.Err() != nil {
		return false
	}
	if m.activeCount >= m.maxConcurrency {
		return false
	}

	for _, batch := range m.batches {
		if batch.Status != queue.BatchPending && batch.Status != queue.BatchProcessing {
			continue
		}

		var next *queue.Item
		hasProcessing := false
		for _, item := range batch.Items {
			switch item.Status {
			case queue.StatusPending:
				if _, busy := m.inFlight[item.ID]; !busy && next == nil {
					next = item
				}
			case queue.StatusProcessing:
				hasProcessing = true
			}
		}

		if next == nil {
			if hasProcessing {
				// Workers own the remaining items; later batches may still
				// have dispatchable work.
				continue
			}
			m.finalizeLocked(batch)
			continue
		}

		m.activeCount++
		m.inFlight[next.ID] = struct{}{}
		next.Status = queue.StatusProcessing
		batch.Status = queue.BatchProcessing
		m.persistLocked()
		m.publishLocked()

		m.logger.Debug("item dispatched",
			logging.String("batch_id", batch.ID),
			logging.String("item_id", next.ID),
			logging.Int("active", m.activeCount),
		)

		m.wg.Add(1)
		go m.runPipeline(ctx, batch.ID, next.ID, next.OriginalName, next.MimeType, next.Payload, batch.DestinationMeta)
		return true
	}
	return false
}

// finalizeLocked settles a batch with no pending or processing items: purges
// any payloads not already deleted on individual success, classifies the
// terminal status, and pins progress at 100.
func (m *Manager) finalizeLocked(batch *queue.Batch) {
	for _, item := range batch.Items {
		if err := m.payloads.Delete(item.ID); err != nil {
			m.logger.Warn("purge payload failed",
				logging.String("item_id", item.ID),
				logging.Error(err),
			)
		}
	}
	batch.Recount()
	batch.Status = batch.TerminalStatus()
	batch.Progress = 100
	m.persistLocked()
	m.publishLocked()

	m.logger.Info("batch finalized",
		logging.String("batch_id", batch.ID),
		logging.String("status", string(batch.Status)),
		logging.Int("success", batch.SuccessCount),
		logging.Int("failed", batch.FailedCount),
	)
}
