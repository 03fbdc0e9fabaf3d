package journal_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"overlaycast/internal/channel"
	"overlaycast/internal/journal"
	"overlaycast/internal/testsupport"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournal())
	j := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if j.Path() != filepath.Join(cfg.Paths.StateDir, "journal.db") {
		t.Fatalf("unexpected journal path: %q", j.Path())
	}

	entries := []journal.Entry{
		{Channel: "lower-third", EventID: "e1", Type: "show", Source: "director", Success: true, Duration: 3 * time.Millisecond, At: base},
		{Channel: "lower-third", EventID: "e2", Type: "update", Source: "director", Success: false, Error: "not visible", At: base.Add(time.Second)},
		{Channel: "poster", EventID: "e3", Type: "show", Source: "local", Success: true, At: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		recorded, err := j.Record(ctx, e)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if recorded.ID == 0 {
			t.Fatal("expected id to be assigned")
		}
	}

	all, err := j.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].EventID != "e3" || all[2].EventID != "e1" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[2].Duration != 3*time.Millisecond || !all[2].At.Equal(base) {
		t.Fatalf("round trip lost fields: %+v", all[2])
	}

	failed, err := j.List(ctx, journal.Filter{FailedOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "not visible" {
		t.Fatalf("unexpected failed entries: %+v", failed)
	}

	filtered, err := j.List(ctx, journal.Filter{Channel: "lower-third", Type: "show"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EventID != "e1" {
		t.Fatalf("unexpected filtered entries: %+v", filtered)
	}

	recent, err := j.List(ctx, journal.Filter{Since: base.Add(time.Second), Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recent) != 1 || recent[0].EventID != "e3" {
		t.Fatalf("unexpected limited entries: %+v", recent)
	}
}

func TestRecordRequiresIdentity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	if _, err := j.Record(context.Background(), journal.Entry{Channel: "poster"}); err == nil {
		t.Fatal("expected error without event id")
	}
}

func TestStatsAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	for i, success := range []bool{true, false, true} {
		if _, err := j.Record(ctx, journal.Entry{
			Channel: "chat-highlight",
			EventID: string(rune('a' + i)),
			Type:    "show",
			Success: success,
			At:      base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	stats, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Total != 3 || stats[0].Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if !stats[0].LastAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected last timestamp: %v", stats[0].LastAt)
	}

	removed, err := j.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned entries, got %d", removed)
	}
	left, err := j.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(left) != 1 || left[0].EventID != "c" {
		t.Fatalf("unexpected remaining entries: %+v", left)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := first.Record(ctx, journal.Entry{Channel: "poster", EventID: "p1", Type: "hide", Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := testsupport.MustOpenJournal(t, cfg)
	entries, err := second.List(ctx, journal.Filter{Channel: "poster"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "hide" {
		t.Fatalf("entries not persisted: %+v", entries)
	}
	if err := second.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestRecorderWritesAcks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	j := testsupport.MustOpenJournal(t, cfg)

	rec := journal.NewRecorder(j, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	rec.ObserveAck(channel.AckEvent{
		Channel: "countdown",
		EventID: "c1",
		Type:    "update",
		Success: false,
		Source:  channel.SourceDirector,
		Err:     errors.New("invalid payload: duration must be >= 0"),
		At:      base,
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	entries, err := j.List(context.Background(), journal.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the queued ack to be flushed, got %d entries", len(entries))
	}
	got := entries[0]
	if got.Channel != "countdown" || got.Source != "director" || got.Success || got.Error == "" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if rec.Dropped() != 0 {
		t.Fatalf("unexpected drops: %d", rec.Dropped())
	}
}
