package api

import (
	"time"

	"ferry/internal/queue"
	"ferry/internal/uploader"
)

// FromItem converts a queue item to its API representation.
func FromItem(item *queue.Item) ItemView {
	if item == nil {
		return ItemView{}
	}
	return ItemView{
		ID:           item.ID,
		OriginalName: item.OriginalName,
		MimeType:     item.MimeType,
		Status:       string(item.Status),
		ErrorKind:    string(item.ErrorKind),
		ErrorMessage: item.ErrorMessage,
	}
}

// FromBatch converts a batch record to its API representation.
func FromBatch(batch *queue.Batch) BatchView {
	if batch == nil {
		return BatchView{}
	}
	dto := BatchView{
		ID:             batch.ID,
		Status:         string(batch.Status),
		Progress:       batch.Progress,
		TotalCount:     batch.TotalCount,
		ProcessedCount: batch.ProcessedCount,
		SuccessCount:   batch.SuccessCount,
		FailedCount:    batch.FailedCount,
		Items:          make([]ItemView, 0, len(batch.Items)),
	}
	if len(batch.DestinationMeta) > 0 {
		meta := make(map[string]string, len(batch.DestinationMeta))
		for k, v := range batch.DestinationMeta {
			meta[k] = v
		}
		dto.DestinationMeta = meta
	}
	if !batch.CreatedAt.IsZero() {
		dto.CreatedAt = batch.CreatedAt.UTC().Format(dateTimeFormat)
	}
	for _, item := range batch.Items {
		dto.Items = append(dto.Items, FromItem(item))
	}
	return dto
}

// FromBatches converts a batch collection into API DTOs, preserving order.
func FromBatches(batches []*queue.Batch) []BatchView {
	if len(batches) == 0 {
		return nil
	}
	out := make([]BatchView, 0, len(batches))
	for _, batch := range batches {
		out = append(out, FromBatch(batch))
	}
	return out
}

// FromHealthSummary converts queue health tallies to the API payload.
func FromHealthSummary(summary queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Batches:    summary.Batches,
		Items:      summary.Items,
		Pending:    summary.Pending,
		Processing: summary.Processing,
		Success:    summary.Success,
		Failed:     summary.Failed,
	}
}

// FromStatusSummary converts a manager status summary to the daemon status payload.
func FromStatusSummary(summary uploader.StatusSummary, pid int) DaemonStatus {
	return DaemonStatus{
		Running:        summary.Running,
		PID:            pid,
		ActiveCount:    summary.ActiveCount,
		MaxConcurrency: summary.MaxConcurrency,
		Durable:        summary.Durable,
		Queue:          FromHealthSummary(summary.Queue),
	}
}

// FormatTime converts a time to the API timestamp format or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateTimeFormat, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
