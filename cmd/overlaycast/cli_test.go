package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"overlaycast/internal/logging"
)

func TestDaemonStartAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	// stop is not exercised here: it terminates the daemon process, which is
	// the test binary itself.
	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Daemon started")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "Daemon already running")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "lower-third")
}

func TestSendOverlaysAndEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, _, err := runCLI(t, []string{
		"send", "lower-third", "show",
		"--id", "cli-1",
		"--field", "title=Jane Doe",
		"--field", "subtitle=Keynote",
		"--field", "transition=none",
	}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	requireContains(t, out, "Event cli-1 applied to lower-third")
	requireContains(t, out, "visible: yes")

	out, _, err = runCLI(t, []string{"overlays", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("overlays list: %v", err)
	}
	requireContains(t, out, "lower-third")
	requireContains(t, out, "cli-1")

	out, _, err = runCLI(t, []string{"overlays", "show", "lower-third"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("overlays show: %v", err)
	}
	requireContains(t, out, "Phase:      Visible")
	requireContains(t, out, "title: Jane Doe")

	if _, _, err := runCLI(t, []string{"overlays", "show", "ticker"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown overlay error")
	}

	if _, _, err := runCLI(t, []string{"send", "countdown", "update", "--id", "cli-2", "--field", "seconds=5"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected update on hidden overlay to fail")
	}

	waitFor(t, 2*time.Second, func() bool {
		out, _, err = runCLI(t, []string{"events", "--failed"}, env.socketPath, env.configPath)
		return err == nil && strings.Contains(out, "cli-2")
	})
	if strings.Contains(out, "cli-1") {
		t.Fatalf("expected only failed events, got %q", out)
	}
}

func TestChaptersWithoutMedia(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"chapters", "poster"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("chapters: %v", err)
	}
	requireContains(t, out, "poster has no chapters")

	if _, _, err := runCLI(t, []string{"chapters", "poster", "--next", "--previous"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected conflicting flags to fail")
	}
}

func TestLogsFallBackToIPC(t *testing.T) {
	env := setupCLITestEnv(t)
	env.hub.Publish(logging.LogEvent{Level: "INFO", Message: "connected to director", Component: "channel"})
	env.hub.Publish(logging.LogEvent{Level: "WARN", Message: "update rejected", Component: "overlay", Channel: "countdown"})

	out, _, err := runCLI(t, []string{"logs", "-n", "5"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "connected to director")
	requireContains(t, out, "WARN [overlay] countdown - update rejected")

	out, _, err = runCLI(t, []string{"logs", "--component", "channel"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs filtered: %v", err)
	}
	if strings.Contains(out, "update rejected") {
		t.Fatalf("expected component filter to apply, got %q", out)
	}
}

func TestCommandsRequireDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "missing.sock")
	_, _, err := runCLI(t, []string{"overlays", "list"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "overlaycast start") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestConfigInitValidateShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Overlays: 4")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[director]")
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "director-secret") || strings.Contains(out, "api-secret") {
		t.Fatalf("expected secrets to be redacted, got %q", out)
	}
}
