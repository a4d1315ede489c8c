package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ItemView describes a single queued payload in a transport-friendly format.
type ItemView struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Status       string `json:"status"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// BatchView describes a batch and its items.
type BatchView struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	Progress        int               `json:"progress"`
	TotalCount      int               `json:"totalCount"`
	ProcessedCount  int               `json:"processedCount"`
	SuccessCount    int               `json:"successCount"`
	FailedCount     int               `json:"failedCount"`
	DestinationMeta map[string]string `json:"destinationMeta,omitempty"`
	CreatedAt       string            `json:"createdAt,omitempty"`
	Items           []ItemView        `json:"items"`
}

// QueueHealth tallies item states across the whole queue.
type QueueHealth struct {
	Batches    int `json:"batches"`
	Items      int `json:"items"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool        `json:"running"`
	PID            int         `json:"pid"`
	ActiveCount    int         `json:"activeCount"`
	MaxConcurrency int         `json:"maxConcurrency"`
	Durable        bool        `json:"durable"`
	Queue          QueueHealth `json:"queue"`
}

// BatchListResponse wraps a collection of batches for API responses.
type BatchListResponse struct {
	Batches []BatchView `json:"batches"`
}

// BatchResponse wraps a single batch.
type BatchResponse struct {
	Batch BatchView `json:"batch"`
}

// SubmitResponse acknowledges an accepted batch.
type SubmitResponse struct {
	BatchID string `json:"batchId"`
}

// ClearedResponse reports how many batches a clear operation removed.
type ClearedResponse struct {
	Cleared int `json:"cleared"`
}

// ErrorResponse carries a machine-readable failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
