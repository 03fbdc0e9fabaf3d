package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"overlaycast/internal/config"
	"overlaycast/internal/logging"
	"overlaycast/internal/services"
)

func TestConsoleLoggerWritesChannelPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "channel").Info("subscribed",
		logging.String(logging.FieldChannel, "lower-third"),
		logging.Int("attempt", 2),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO channel: [lower-third] subscribed") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, "attempt=2") {
		t.Fatalf("expected attempt attribute in %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{
		Level:           "info",
		JSONOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("ack queued", logging.String(logging.FieldEventID, "e-9"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, content)
	}
	for _, key := range []string{"ts", "level", "msg", "event_id"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected key %q in %v", key, record)
		}
	}
	if record["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
}

func TestLevelOverrideAllowsVerboseChannel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		FloorLevel:  "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("hidden debug")
	logging.WithLevelOverride(logger.With(logging.String(logging.FieldChannel, "poster")), slog.LevelDebug).Debug("visible debug")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "hidden debug") {
		t.Fatalf("expected base logger to drop debug, got %q", text)
	}
	if !strings.Contains(text, "[poster] visible debug") {
		t.Fatalf("expected override logger to emit debug with channel, got %q", text)
	}
}

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	hub := logging.NewStreamHub(8)

	logger, err := logging.NewFromConfig(&cfg, hub)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "overlaycast.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	events, _ := hub.Tail(1)
	if len(events) != 1 || events[0].Message != "daemon started" {
		t.Fatalf("expected hub to receive event, got %+v", events)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := logging.NewStreamHub(4)
	logger, err := logging.New(logging.Options{OutputPaths: []string{filepath.Join(t.TempDir(), "ctx.log")}, Stream: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithChannel(context.Background(), "countdown")
	ctx = services.WithEventID(ctx, "evt-42")
	logging.WithContext(ctx, logger).Info("handled")

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Channel != "countdown" || events[0].EventID != "evt-42" {
		t.Fatalf("unexpected context fields: %+v", events[0])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := logging.ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "overlaycast-old.log")
	newPath := filepath.Join(dir, "overlaycast-new.log")
	for _, path := range []string{oldPath, newPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := mustOld(t)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: "overlaycast-*.log"})
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected new log kept: %v", err)
	}
}

func TestCleanupOldLogsKeepsExcludedFile(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "overlaycast-active.log")
	if err := os.WriteFile(active, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := mustOld(t)
	if err := os.Chtimes(active, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	removed := logging.CleanupOldLogs(nil, 1, logging.RetentionTarget{Dir: dir, Pattern: "overlaycast-*.log", Exclude: []string{active}})
	if removed != 0 {
		t.Fatalf("expected excluded file kept, removed %d", removed)
	}
}
