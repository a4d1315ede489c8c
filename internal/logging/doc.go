// Package logging builds the slog loggers used across the daemon and CLI.
//
// It supports a compact console format for interactive sessions and a JSON
// format for log files and machine consumption, fanning output to stdout and
// the configured log directory. Attr helpers keep call sites terse and NewNop
// provides a silent logger for tests.
package logging
