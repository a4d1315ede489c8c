package uploader

import (
	"ferry/internal/queue"
)

// Snapshot returns a deep copy of the batch collection in display order
// (most recently created first). Payload bytes are never included.
func (m *Manager) Snapshot() []*queue.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers a push channel that receives a fresh snapshot after
// every observable change. Slow consumers only ever lag by one snapshot: a
// newer one replaces the undelivered value. The returned function cancels the
// subscription.
func (m *Manager) Subscribe() (<-chan []*queue.Batch, func()) {
	ch := make(chan []*queue.Batch, 1)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subscribers, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) publishLocked() {
	if len(m.subscribers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// Replace the stale undelivered snapshot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (m *Manager) snapshotLocked() []*queue.Batch {
	snap := make([]*queue.Batch, 0, len(m.batches))
	for _, batch := range m.batches {
		items := make([]*queue.Item, 0, len(batch.Items))
		for _, item := range batch.Items {
			items = append(items, &queue.Item{
				ID:           item.ID,
				OriginalName: item.OriginalName,
				MimeType:     item.MimeType,
				Status:       item.Status,
				ErrorKind:    item.ErrorKind,
				ErrorMessage: item.ErrorMessage,
				Payload:      queue.PlaceholderPayload(),
			})
		}
		snap = append(snap, &queue.Batch{
			ID:              batch.ID,
			Items:           items,
			DestinationMeta: cloneMeta(batch.DestinationMeta),
			Status:          batch.Status,
			TotalCount:      batch.TotalCount,
			ProcessedCount:  batch.ProcessedCount,
			SuccessCount:    batch.SuccessCount,
			FailedCount:     batch.FailedCount,
			Progress:        batch.Progress,
			CreatedAt:       batch.CreatedAt,
		})
	}
	return snap
}
