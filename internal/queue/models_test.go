package queue_test

import (
	"testing"

	"ferry/internal/queue"
)

func makeBatch(statuses ...queue.Status) *queue.Batch {
	batch := &queue.Batch{ID: "batch-1", Status: queue.BatchPending}
	for i, status := range statuses {
		batch.Items = append(batch.Items, &queue.Item{
			ID:     string(rune('a' + i)),
			Status: status,
		})
	}
	batch.Recount()
	return batch
}

func TestRecountConservation(t *testing.T) {
	batch := makeBatch(queue.StatusSuccess, queue.StatusError, queue.StatusPending, queue.StatusProcessing)

	if batch.TotalCount != 4 {
		t.Fatalf("expected total 4, got %d", batch.TotalCount)
	}
	if batch.ProcessedCount != batch.SuccessCount+batch.FailedCount {
		t.Fatalf("conservation violated: processed=%d success=%d failed=%d",
			batch.ProcessedCount, batch.SuccessCount, batch.FailedCount)
	}
	if batch.ProcessedCount != 2 || batch.SuccessCount != 1 || batch.FailedCount != 1 {
		t.Fatalf("unexpected counters: %+v", batch)
	}
	if batch.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", batch.Progress)
	}
}

func TestTerminalClassification(t *testing.T) {
	completed := makeBatch(queue.StatusSuccess, queue.StatusSuccess, queue.StatusSuccess, queue.StatusSuccess, queue.StatusSuccess)
	if !completed.IsTerminal() {
		t.Fatal("expected five successes to be terminal")
	}
	if got := completed.TerminalStatus(); got != queue.BatchCompleted {
		t.Fatalf("expected completed, got %s", got)
	}

	partial := makeBatch(queue.StatusSuccess, queue.StatusSuccess, queue.StatusSuccess, queue.StatusSuccess, queue.StatusError)
	if !partial.IsTerminal() {
		t.Fatal("expected terminal batch")
	}
	if got := partial.TerminalStatus(); got != queue.BatchPartialError {
		t.Fatalf("expected partial_error, got %s", got)
	}
	if partial.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", partial.Progress)
	}

	inFlight := makeBatch(queue.StatusSuccess, queue.StatusProcessing)
	if inFlight.IsTerminal() {
		t.Fatal("batch with processing item must not be terminal")
	}
}

func TestProgressRounding(t *testing.T) {
	batch := makeBatch(queue.StatusSuccess, queue.StatusPending, queue.StatusPending)
	if batch.Progress != 33 {
		t.Fatalf("expected progress 33 for 1/3, got %d", batch.Progress)
	}
	batch = makeBatch(queue.StatusSuccess, queue.StatusSuccess, queue.StatusPending)
	if batch.Progress != 67 {
		t.Fatalf("expected progress 67 for 2/3, got %d", batch.Progress)
	}
}

func TestPayloadHandle(t *testing.T) {
	resident := queue.ResidentPayload([]byte("payload"))
	data, ok := resident.Resident()
	if !ok || string(data) != "payload" {
		t.Fatalf("expected resident payload, got ok=%v data=%q", ok, data)
	}

	placeholder := queue.PlaceholderPayload()
	if _, ok := placeholder.Resident(); ok {
		t.Fatal("placeholder must not report resident bytes")
	}

	// A zero-length resident handle is indistinguishable from a placeholder:
	// the pipeline must not upload empty content on its behalf.
	empty := queue.ResidentPayload(nil)
	if _, ok := empty.Resident(); ok {
		t.Fatal("empty resident payload must not report bytes")
	}
}

func TestItemTransitions(t *testing.T) {
	item := &queue.Item{ID: "i1", Status: queue.StatusProcessing, Payload: queue.ResidentPayload([]byte("x"))}

	item.SetFailed(queue.ErrorKindUpload, "sink rejected upload")
	if item.Status != queue.StatusError || item.ErrorKind != queue.ErrorKindUpload {
		t.Fatalf("unexpected failed state: %+v", item)
	}

	item.ResetForRetry()
	if item.Status != queue.StatusPending || item.ErrorKind != queue.ErrorKindNone || item.ErrorMessage != "" {
		t.Fatalf("retry reset incomplete: %+v", item)
	}

	item.SetSucceeded()
	if item.Status != queue.StatusSuccess {
		t.Fatalf("expected success, got %s", item.Status)
	}
	if _, ok := item.Payload.Resident(); ok {
		t.Fatal("success must drop in-memory payload bytes")
	}
}

func TestSummarize(t *testing.T) {
	batches := []*queue.Batch{
		makeBatch(queue.StatusSuccess, queue.StatusError),
		makeBatch(queue.StatusPending, queue.StatusProcessing),
	}
	summary := queue.Summarize(batches)
	if summary.Batches != 2 || summary.Items != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Pending != 1 || summary.Processing != 1 || summary.Success != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Pending "); !ok || status != queue.StatusPending {
		t.Fatalf("expected pending, got %q ok=%v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status must not parse")
	}
	if status, ok := queue.ParseBatchStatus("PARTIAL_ERROR"); !ok || status != queue.BatchPartialError {
		t.Fatalf("expected partial_error, got %q ok=%v", status, ok)
	}
}
