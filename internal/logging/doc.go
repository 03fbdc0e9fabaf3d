// Package logging assembles structured slog loggers and formatting helpers used
// across overlaycast.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so channel handlers automatically
// tag log lines with channel names, overlay instances, and director event IDs.
// StreamHub keeps a bounded window of recent events for `overlaycast logs`.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
