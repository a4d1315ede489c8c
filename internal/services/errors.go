package services

import (
	"errors"
	"fmt"
	"strings"

	"ferry/internal/queue"
)

var (
	// ErrPayloadLost marks a durability-boundary failure: the payload is
	// missing from both the payload store and the in-memory handle.
	ErrPayloadLost = errors.New("payload lost")
	// ErrTransform marks transform-stage failures, including timeouts.
	ErrTransform = errors.New("transform failure")
	// ErrUpload marks upload-stage failures, including timeouts and
	// semantically-failed responses.
	ErrUpload = errors.New("upload failure")
	// ErrTimeout tags stage failures caused by a deadline expiring.
	ErrTimeout = errors.New("timeout")
)

// Error carries a stage failure with its marker for later classification and
// a short message suitable for per-item display.
type Error struct {
	Marker    error
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Marker, detail)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Marker, e.Err}
	}
	return []error{e.Marker}
}

// Wrap builds a stage error tagged with the provided marker. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	if marker == nil {
		marker = ErrUpload
	}
	return &Error{Marker: marker, Operation: operation, Message: message, Err: err}
}

// Classify maps a stage error to the error kind persisted on the item.
func Classify(err error) queue.ErrorKind {
	switch {
	case errors.Is(err, ErrPayloadLost):
		return queue.ErrorKindPayload
	case errors.Is(err, ErrTransform):
		return queue.ErrorKindTransform
	default:
		return queue.ErrorKindUpload
	}
}

// Message extracts the short human-readable message from a stage error,
// falling back to the full error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var stageErr *Error
	if errors.As(err, &stageErr) {
		if msg := strings.TrimSpace(stageErr.Message); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(err.Error())
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
