// Package queue defines the batch and item state model and persists its
// redacted snapshot in SQLite.
//
// A Batch is an immutable unit of work: its items are fixed at submission and
// only their statuses, error fields, and the derived counters change
// afterwards. The Store writes the full collection on every observable change
// so a crash loses at most the mutation in flight; payload bytes are excluded
// and live in the payload store keyed by item id.
//
// Treat this package as the single source of truth for queue semantics; when
// adding statuses or item fields, update schema.sql and bump schemaVersion.
package queue
