// Package uploader schedules batches of payloads through the
// transform-upload pipeline under a global concurrency cap.
//
// The Manager is the single owner of the batch collection. Submissions,
// pipeline completions, retries, and removals all mutate it under one mutex
// and persist the redacted snapshot synchronously, so a crash loses at most
// the mutation in flight. A buffered wake channel plus a periodic watchdog
// tick drive the same idempotent dispatch routine; spurious wakes are safe by
// construction.
//
// Up to MaxConcurrency pipelines run concurrently. Each executes
// resolve -> transform -> upload with independent stage timeouts and
// terminates only its own item on failure; the scheduler itself never blocks
// on a pipeline and never crashes on one.
package uploader
