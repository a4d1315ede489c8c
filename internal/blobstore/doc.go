// Package blobstore persists raw payload binaries across restarts.
//
// Payloads are keyed by item id in a Pebble database so queued work survives a
// daemon crash without the metadata snapshot having to carry large binaries.
// The store degrades to a logged no-op when the database cannot be opened.
package blobstore
