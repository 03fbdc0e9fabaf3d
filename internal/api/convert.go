package api

import (
	"slices"
	"time"

	"overlaycast/internal/channel"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/overlay"
)

// FromSnapshot converts an overlay snapshot to its API representation.
func FromSnapshot(snap overlay.Snapshot) OverlayState {
	dto := OverlayState{
		Name:       snap.Overlay,
		Channel:    snap.Channel,
		Kind:       snap.Kind,
		Phase:      string(snap.Phase),
		Visible:    snap.Visible,
		Hiding:     snap.Hiding,
		Current:    fromItemView(snap.Current),
		Previous:   fromItemView(snap.Previous),
		Transition: snap.Transition,
		Flags:      snap.Flags,
		Playback:   snap.Playback,
		Chapters:   snap.Chapters,
		Chapter:    snap.Chapter,
		Version:    snap.Version,
		UpdatedAt:  formatTime(snap.UpdatedAt),
	}
	if len(dto.Flags) == 0 {
		dto.Flags = nil
	}
	return dto
}

// SummarizeSnapshot reduces a snapshot to its listing row.
func SummarizeSnapshot(snap overlay.Snapshot) OverlaySummary {
	summary := OverlaySummary{
		Name:      snap.Overlay,
		Channel:   snap.Channel,
		Kind:      snap.Kind,
		Phase:     string(snap.Phase),
		Visible:   snap.Visible,
		Version:   snap.Version,
		UpdatedAt: formatTime(snap.UpdatedAt),
	}
	if snap.Current != nil {
		summary.CurrentID = snap.Current.ID
	}
	if snap.Playback != nil {
		summary.Playing = snap.Playback.IsPlaying
	}
	return summary
}

// SummarizeSnapshots converts snapshots to listing rows, preserving order.
func SummarizeSnapshots(snaps []overlay.Snapshot) []OverlaySummary {
	if len(snaps) == 0 {
		return nil
	}
	out := make([]OverlaySummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, SummarizeSnapshot(snap))
	}
	return out
}

func fromItemView(view *overlay.ItemView) *ItemView {
	if view == nil {
		return nil
	}
	return &ItemView{
		ID:          view.ID,
		Payload:     view.Payload,
		AspectRatio: view.AspectRatio,
		ShownAt:     formatTime(view.ShownAt),
	}
}

// FromDirectorStatus converts the channel client status.
func FromDirectorStatus(status channel.Status) DirectorStatus {
	channels := slices.Clone(status.Channels)
	slices.Sort(channels)
	return DirectorStatus{
		State:       string(status.State),
		URL:         status.URL,
		Channels:    channels,
		Reconnects:  status.Reconnects,
		PendingAcks: status.PendingAcks,
		LastError:   status.LastError,
		ConnectedAt: formatTime(status.ConnectedAt),
	}
}

// FromJournalEntries converts journal rows, preserving order.
func FromJournalEntries(entries []journal.Entry) []JournalEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]JournalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, JournalEntry{
			ID:         e.ID,
			Channel:    e.Channel,
			EventID:    e.EventID,
			Type:       e.Type,
			Source:     e.Source,
			Success:    e.Success,
			Error:      e.Error,
			DurationMS: float64(e.Duration) / float64(time.Millisecond),
			RecordedAt: formatTime(e.At),
		})
	}
	return out
}

// FromJournalStats converts per-channel journal totals.
func FromJournalStats(stats []journal.ChannelStats) []JournalStats {
	if len(stats) == 0 {
		return nil
	}
	out := make([]JournalStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, JournalStats{
			Channel: s.Channel,
			Total:   s.Total,
			Failed:  s.Failed,
			LastAt:  formatTime(s.LastAt),
		})
	}
	return out
}

// FromLogEvents converts hub events to their API representation.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			Channel:   evt.Channel,
			Overlay:   evt.Overlay,
			EventID:   evt.EventID,
			Fields:    evt.Fields,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
