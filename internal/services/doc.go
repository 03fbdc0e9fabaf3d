// Package services defines shared utilities consumed by the overlay engine and
// the daemon wiring around it.
//
// Key responsibilities:
//   - Context helpers that stamp channel names, overlay instances, director
//     event IDs, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which turns
//     handler failures into the short classes used by the journal and metrics.
//
// Use these helpers when wiring new handlers so failed acks, journal rows, and
// log lines describe failures the same way.
package services
