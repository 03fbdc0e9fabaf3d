package api

import (
	"overlaycast/internal/protocol"
	"overlaycast/internal/transition"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ItemView is one shown payload in transport form.
type ItemView struct {
	ID          string         `json:"id"`
	Payload     map[string]any `json:"payload"`
	AspectRatio float64        `json:"aspectRatio,omitempty"`
	ShownAt     string         `json:"shownAt,omitempty"`
}

// OverlayState is the full render state of one overlay.
type OverlayState struct {
	Name       string                  `json:"name"`
	Channel    string                  `json:"channel"`
	Kind       string                  `json:"kind"`
	Phase      string                  `json:"phase"`
	Visible    bool                    `json:"visible"`
	Hiding     bool                    `json:"hiding"`
	Current    *ItemView               `json:"current,omitempty"`
	Previous   *ItemView               `json:"previous,omitempty"`
	Transition string                  `json:"transition,omitempty"`
	Flags      transition.Flags        `json:"flags,omitempty"`
	Playback   *protocol.PlaybackState `json:"playback,omitempty"`
	Chapters   []protocol.Chapter      `json:"chapters,omitempty"`
	Chapter    *protocol.Chapter       `json:"chapter,omitempty"`
	Version    uint64                  `json:"version"`
	UpdatedAt  string                  `json:"updatedAt,omitempty"`
}

// OverlaySummary is the one-line view used by listings.
type OverlaySummary struct {
	Name      string `json:"name"`
	Channel   string `json:"channel"`
	Kind      string `json:"kind"`
	Phase     string `json:"phase"`
	Visible   bool   `json:"visible"`
	CurrentID string `json:"currentId,omitempty"`
	Playing   bool   `json:"playing"`
	Version   uint64 `json:"version"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// OverlayListResponse wraps overlay summaries.
type OverlayListResponse struct {
	Overlays []OverlaySummary `json:"overlays"`
}

// OverlayResponse wraps a single overlay state.
type OverlayResponse struct {
	Overlay OverlayState `json:"overlay"`
}

// DirectorStatus describes the control channel connection.
type DirectorStatus struct {
	State       string   `json:"state"`
	URL         string   `json:"url"`
	Channels    []string `json:"channels"`
	Reconnects  int      `json:"reconnects"`
	PendingAcks int      `json:"pendingAcks"`
	LastError   string   `json:"lastError,omitempty"`
	ConnectedAt string   `json:"connectedAt,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// StatusLine is one labelled health row rendered by status views.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	SessionID      string             `json:"sessionId,omitempty"`
	StartedAt      string             `json:"startedAt,omitempty"`
	LockFilePath   string             `json:"lockFilePath"`
	JournalPath    string             `json:"journalPath,omitempty"`
	APIAddress     string             `json:"apiAddress,omitempty"`
	Director       DirectorStatus     `json:"director"`
	Overlays       []OverlaySummary   `json:"overlays"`
	VisibleCount   int                `json:"visibleCount"`
	JournalDropped uint64             `json:"journalDropped,omitempty"`
	Dependencies   []DependencyStatus `json:"dependencies"`

	// Populated by the CLI status snapshot, never by the daemon itself.
	SystemChecks      []StatusLine      `json:"systemChecks,omitempty"`
	PathChecks        []StatusLine      `json:"pathChecks,omitempty"`
	JournalStats      []JournalStats    `json:"journalStats,omitempty"`
	DependencySummary DependencySummary `json:"dependencySummary"`
}

// JournalEntry is one handled event in transport form.
type JournalEntry struct {
	ID         int64   `json:"id"`
	Channel    string  `json:"channel"`
	EventID    string  `json:"eventId"`
	Type       string  `json:"type"`
	Source     string  `json:"source"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"durationMs"`
	RecordedAt string  `json:"recordedAt"`
}

// JournalStats summarises one channel's journal.
type JournalStats struct {
	Channel string `json:"channel"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	LastAt  string `json:"lastAt,omitempty"`
}

// JournalResponse wraps journal entries and per-channel totals.
type JournalResponse struct {
	Entries []JournalEntry `json:"entries"`
	Stats   []JournalStats `json:"stats,omitempty"`
}

// LogEvent is a structured log line in transport form.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	Overlay   string            `json:"overlay,omitempty"`
	EventID   string            `json:"eventId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse wraps log events and the cursor for the next fetch.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
