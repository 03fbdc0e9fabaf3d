package api

import (
	"testing"
	"time"

	"overlaycast/internal/channel"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/overlay"
	"overlaycast/internal/protocol"
	"overlaycast/internal/transition"
)

func TestFromSnapshotCopiesRenderState(t *testing.T) {
	shown := time.Date(2026, 3, 14, 18, 30, 0, 0, time.FixedZone("CET", 3600))
	snap := overlay.Snapshot{
		Overlay: "poster",
		Channel: "poster",
		Kind:    overlay.KindPoster,
		Phase:   overlay.PhaseCrossfade,
		Visible: true,
		Current: &overlay.ItemView{
			ID:          "b",
			Payload:     map[string]any{"title": "Next up"},
			AspectRatio: 0.75,
			ShownAt:     shown,
		},
		Previous: &overlay.ItemView{ID: "a"},
		Flags:    transition.Flags{},
		Playback: &protocol.PlaybackState{CurrentTime: 12, Duration: 60, IsPlaying: true},
		Version:  7,
	}

	dto := FromSnapshot(snap)
	if dto.Name != "poster" || dto.Phase != "crossfade" || !dto.Visible {
		t.Fatalf("unexpected state: %+v", dto)
	}
	if dto.Current == nil || dto.Current.ShownAt != "2026-03-14T17:30:00.000Z" {
		t.Fatalf("unexpected current item: %+v", dto.Current)
	}
	if dto.Previous == nil || dto.Previous.ID != "a" || dto.Previous.ShownAt != "" {
		t.Fatalf("unexpected previous item: %+v", dto.Previous)
	}
	if dto.Flags != nil {
		t.Fatalf("expected empty flags to be dropped, got %v", dto.Flags)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("expected zero timestamp to be omitted, got %q", dto.UpdatedAt)
	}

	summary := SummarizeSnapshot(snap)
	if summary.CurrentID != "b" || !summary.Playing || summary.Version != 7 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := SummarizeSnapshots(nil); got != nil {
		t.Fatalf("expected nil summaries, got %v", got)
	}
}

func TestFromDirectorStatusSortsChannels(t *testing.T) {
	status := channel.Status{
		State:       channel.StateConnected,
		URL:         "ws://director.local/ws",
		Channels:    []string{"poster", "chat-highlight", "countdown"},
		Reconnects:  2,
		ConnectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	dto := FromDirectorStatus(status)
	if dto.State != "connected" || dto.Reconnects != 2 {
		t.Fatalf("unexpected status: %+v", dto)
	}
	if dto.Channels[0] != "chat-highlight" || dto.Channels[2] != "poster" {
		t.Fatalf("expected sorted channels, got %v", dto.Channels)
	}
	if status.Channels[0] != "poster" {
		t.Fatal("input channels should not be reordered")
	}
	if dto.ConnectedAt != "2026-01-02T03:04:05.000Z" {
		t.Fatalf("unexpected connectedAt: %q", dto.ConnectedAt)
	}
}

func TestFromJournalEntries(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := FromJournalEntries([]journal.Entry{{
		ID:       4,
		Channel:  "countdown",
		EventID:  "evt-4",
		Type:     protocol.TypeUpdate,
		Source:   "director",
		Success:  false,
		Error:    "overlay not visible",
		Duration: 1500 * time.Microsecond,
		At:       at,
	}})
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.DurationMS != 1.5 || e.Error != "overlay not visible" || e.RecordedAt != "2026-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	stats := FromJournalStats([]journal.ChannelStats{{Channel: "countdown", Total: 3, Failed: 1, LastAt: at}})
	if len(stats) != 1 || stats[0].Failed != 1 || stats[0].LastAt == "" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestFromLogEvents(t *testing.T) {
	events := FromLogEvents([]logging.LogEvent{{
		Sequence:  9,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Level:     "WARN",
		Message:   "ack queue full",
		Component: "channel",
		Channel:   "poster",
		Fields:    map[string]string{"dropped": "1"},
	}})
	if len(events) != 1 || events[0].Sequence != 9 || events[0].Channel != "poster" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Fields["dropped"] != "1" {
		t.Fatalf("expected fields to carry over: %+v", events[0].Fields)
	}
	if FromLogEvents(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}
