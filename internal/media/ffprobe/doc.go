// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: per-stream dimensions and aspect ratios
//   - Format: container-level duration
//
// Inspect executes ffprobe and returns a parsed Result; helper methods expose
// the duration and display aspect ratio the overlay engine needs.
package ffprobe
