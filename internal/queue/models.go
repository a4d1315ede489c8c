package queue

import (
	"math"
	"strings"
	"time"
)

// Status represents the lifecycle of a single item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// BatchStatus represents the rollup lifecycle of a batch.
type BatchStatus string

const (
	BatchPending      BatchStatus = "pending"
	BatchProcessing   BatchStatus = "processing"
	BatchCompleted    BatchStatus = "completed"
	BatchPartialError BatchStatus = "partial_error"
)

// ErrorKind classifies why an item failed.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindPayload   ErrorKind = "payload-lost"
	ErrorKindTransform ErrorKind = "transform-failure"
	ErrorKindUpload    ErrorKind = "upload-failure"
)

var itemStatusSet = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusSuccess:    {},
	StatusError:      {},
}

var batchStatusSet = map[BatchStatus]struct{}{
	BatchPending:      {},
	BatchProcessing:   {},
	BatchCompleted:    {},
	BatchPartialError: {},
}

// ParseStatus converts a string into a known item Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := itemStatusSet[normalized]
	return normalized, ok
}

// ParseBatchStatus converts a string into a known BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, bool) {
	normalized := BatchStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := batchStatusSet[normalized]
	return normalized, ok
}

// PayloadHandle is a tagged reference to an item's binary. Fresh submissions
// hold the bytes in memory until they reach the payload store; after a restart
// only a placeholder survives and the bytes must come from the store.
type PayloadHandle struct {
	data     []byte
	resident bool
}

// ResidentPayload wraps in-memory payload bytes.
func ResidentPayload(data []byte) PayloadHandle {
	return PayloadHandle{data: data, resident: true}
}

// PlaceholderPayload marks a payload whose bytes live only in the payload store.
func PlaceholderPayload() PayloadHandle {
	return PayloadHandle{}
}

// Resident returns the in-memory bytes when the handle still carries them.
func (h PayloadHandle) Resident() ([]byte, bool) {
	if !h.resident || len(h.data) == 0 {
		return nil, false
	}
	return h.data, true
}

// Item is one binary payload plus its processing state within a batch.
type Item struct {
	ID           string
	OriginalName string
	MimeType     string
	Status       Status
	ErrorKind    ErrorKind
	ErrorMessage string
	Payload      PayloadHandle
}

// IsTerminal reports whether the item has finished processing.
func (i *Item) IsTerminal() bool {
	return i.Status == StatusSuccess || i.Status == StatusError
}

// SetFailed marks the item as failed with a classification and message.
func (i *Item) SetFailed(kind ErrorKind, message string) {
	i.Status = StatusError
	i.ErrorKind = kind
	i.ErrorMessage = message
}

// SetSucceeded marks the item as successfully uploaded and drops any
// in-memory payload bytes.
func (i *Item) SetSucceeded() {
	i.Status = StatusSuccess
	i.ErrorKind = ErrorKindNone
	i.ErrorMessage = ""
	i.Payload = PlaceholderPayload()
}

// ResetForRetry returns a failed item to pending, clearing its error.
func (i *Item) ResetForRetry() {
	i.Status = StatusPending
	i.ErrorKind = ErrorKindNone
	i.ErrorMessage = ""
}

// Batch is a caller-submitted group of items sharing destination metadata.
// Items are fixed at submission; only their statuses change afterwards.
type Batch struct {
	ID              string
	Items           []*Item
	DestinationMeta map[string]string
	Status          BatchStatus
	TotalCount      int
	ProcessedCount  int
	SuccessCount    int
	FailedCount     int
	Progress        int
	CreatedAt       time.Time
}

// Recount recomputes the derived counters and progress from item statuses.
func (b *Batch) Recount() {
	b.TotalCount = len(b.Items)
	b.ProcessedCount = 0
	b.SuccessCount = 0
	b.FailedCount = 0
	for _, item := range b.Items {
		switch item.Status {
		case StatusSuccess:
			b.SuccessCount++
			b.ProcessedCount++
		case StatusError:
			b.FailedCount++
			b.ProcessedCount++
		}
	}
	if b.TotalCount == 0 {
		b.Progress = 0
		return
	}
	b.Progress = int(math.Round(float64(b.ProcessedCount) / float64(b.TotalCount) * 100))
}

// IsTerminal reports whether every item has finished processing.
func (b *Batch) IsTerminal() bool {
	for _, item := range b.Items {
		if !item.IsTerminal() {
			return false
		}
	}
	return true
}

// TerminalStatus classifies a fully-processed batch.
func (b *Batch) TerminalStatus() BatchStatus {
	for _, item := range b.Items {
		if item.Status == StatusError {
			return BatchPartialError
		}
	}
	return BatchCompleted
}

// ItemByID returns the item with the given id, or nil.
func (b *Batch) ItemByID(id string) *Item {
	for _, item := range b.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// HealthSummary describes aggregated item counts per lifecycle state.
type HealthSummary struct {
	Batches    int
	Items      int
	Pending    int
	Processing int
	Success    int
	Failed     int
}

// Summarize tallies item states across a batch collection.
func Summarize(batches []*Batch) HealthSummary {
	summary := HealthSummary{Batches: len(batches)}
	for _, batch := range batches {
		for _, item := range batch.Items {
			summary.Items++
			switch item.Status {
			case StatusPending:
				summary.Pending++
			case StatusProcessing:
				summary.Processing++
			case StatusSuccess:
				summary.Success++
			case StatusError:
				summary.Failed++
			}
		}
	}
	return summary
}
