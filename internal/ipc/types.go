package ipc

import (
	"encoding/json"

	"overlaycast/internal/api"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and director status.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes an external binary the daemon checked.
type DependencyStatus = api.DependencyStatus

// OverlaySummary is one row of the overlay listing.
type OverlaySummary = api.OverlaySummary

// OverlayState is the full state of one overlay.
type OverlayState = api.OverlayState

// OverlaysRequest lists every overlay.
type OverlaysRequest struct{}

// OverlaysResponse contains overlay summaries in configuration order.
type OverlaysResponse struct {
	Overlays []OverlaySummary `json:"overlays"`
}

// DescribeRequest fetches one overlay by name or channel.
type DescribeRequest struct {
	Overlay string `json:"overlay"`
}

// DescribeResponse wraps the overlay state.
type DescribeResponse struct {
	Overlay OverlayState `json:"overlay"`
}

// SendRequest injects an event for one overlay.
type SendRequest struct {
	Overlay string          `json:"overlay"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendResponse reports the applied event and the resulting overlay state.
type SendResponse struct {
	EventID string       `json:"event_id"`
	Channel string       `json:"channel"`
	Overlay OverlayState `json:"overlay"`
}

// EventsRequest lists journaled events.
type EventsRequest struct {
	Channel    string `json:"channel,omitempty"`
	Type       string `json:"type,omitempty"`
	FailedOnly bool   `json:"failed_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// EventsResponse contains journal entries, newest first, and per-channel totals.
type EventsResponse = api.JournalResponse

// LogTailRequest fetches log events after a cursor.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component,omitempty"`
	Channel    string `json:"channel,omitempty"`
}

// LogTailResponse returns log events and the next cursor.
type LogTailResponse = api.LogStreamResponse
