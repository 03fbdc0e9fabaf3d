package testsupport

import (
	"path/filepath"
	"testing"

	"overlaycast/internal/config"
)

// ConfigOption adjusts the config produced by NewConfig.
type ConfigOption func(*config.Config)

// NewConfig returns defaults rooted in t.TempDir with the API on an
// ephemeral port and a director URL nothing listens on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	state := filepath.Join(t.TempDir(), "state")
	cfg := config.Default()
	cfg.Paths.StateDir = state
	cfg.Paths.LogDir = filepath.Join(state, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Director.URL = "ws://127.0.0.1:1/ws"
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

func WithDirector(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.Director.URL = url }
}

// WithJournal enables the SQLite event journal under the state dir.
func WithJournal() ConfigOption {
	return func(cfg *config.Config) { cfg.Journal.Enabled = true }
}
