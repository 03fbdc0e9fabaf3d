// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates overlay snapshots, journal rows and log events into
// transport-friendly DTOs that browser renderers and the CLI can consume
// without coupling to internal types.
//
// # Key Types
//
// OverlayState: full render state of one overlay including the current and
// outgoing items, reveal flags, playback state and chapters.
//
// OverlaySummary: one listing row per overlay.
//
// DaemonStatus: running state, director connection, overlay summaries and
// dependency availability.
//
// JournalEntry/JournalStats: handled events recorded by the journal.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Timestamps use
// RFC3339 with milliseconds in UTC, and zero times are omitted.
package api
