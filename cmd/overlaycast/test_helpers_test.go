package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"overlaycast/internal/config"
	"overlaycast/internal/daemon"
	"overlaycast/internal/ipc"
	"overlaycast/internal/logging"
	"overlaycast/internal/overlay"
	"overlaycast/internal/testsupport"
)

// cliTestEnv is a daemon served over a socket in a temp dir, plus a config
// file on disk that points the CLI at it.
type cliTestEnv struct {
	hub        *logging.StreamHub
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	cfg := testsupport.NewConfig(t, testsupport.WithJournal())
	cfg.Media.ProbeVideo = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(home, ".config", "overlaycast", "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	hub := logging.NewStreamHub(64)
	d, err := daemon.New(cfg, logger, daemon.Options{
		Manager: overlay.NewManager(cfg, overlay.Deps{}),
		Journal: testsupport.MustOpenJournal(t, cfg),
		LogHub:  hub,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	socketPath := filepath.Join(cfg.Paths.StateDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if errors.Is(err, syscall.EPERM) {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	return &cliTestEnv{
		hub:        hub,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    filepath.Dir(home),
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--socket", socket, "--config", configPath}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeTestConfig saves cfg as TOML with fixed secrets so tests can assert
// that they are redacted.
func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	onDisk := *cfg
	onDisk.Paths.APIToken = "api-secret"
	onDisk.Director.Token = "director-secret"
	data, err := toml.Marshal(onDisk)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	for deadline := time.Now().Add(within); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met within %s", within)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
