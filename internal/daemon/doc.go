// Package daemon wires the upload manager to its HTTP API and guards
// single-instance execution with a file lock. The daemon owns the stores'
// lifecycles: closing it closes the payload and queue databases.
package daemon
