// Package daemon coordinates the long-running overlaycast process.
//
// It wires configuration, the overlay manager, the director channel client,
// the event journal recorder and the render API into a single lifecycle with
// flock-based locking to prevent multiple instances. The director client is
// rebuilt on every Start so a stopped daemon can be started again in the same
// process.
//
// The render API serves overlay snapshots, server-sent event streams of state
// changes and embedded player commands, player notifications from browser
// renderers, the journal, the log tail and Prometheus metrics.
//
// Keep orchestration logic here: overlay behaviour lives in internal/overlay
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
