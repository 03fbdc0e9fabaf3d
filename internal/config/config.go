package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Director contains the control channel connection settings.
type Director struct {
	URL                string `toml:"url"`
	Token              string `toml:"token"`
	ReconnectDelayMS   int    `toml:"reconnect_delay_ms"`
	HandshakeTimeoutMS int    `toml:"handshake_timeout_ms"`
	AckBuffer          int    `toml:"ack_buffer"`
	DispatchBuffer     int    `toml:"dispatch_buffer"`
}

// Overlay declares one overlay instance and the channel it listens on.
type Overlay struct {
	Name    string `toml:"name"`
	Channel string `toml:"channel"`
	Kind    string `toml:"kind"`
}

// Timing contains overlay lifecycle windows.
type Timing struct {
	CrossfadeMS    int `toml:"crossfade_ms"`
	HideMS         int `toml:"hide_ms"`
	StateTickMS    int `toml:"state_tick_ms"`
	ProbeTimeoutMS int `toml:"probe_timeout_ms"`
}

// Transition contains the lower-third reveal stage delays.
type Transition struct {
	LogoDelayMS      int `toml:"logo_delay_ms"`
	FlipDelayMS      int `toml:"flip_delay_ms"`
	BarDelayMS       int `toml:"bar_delay_ms"`
	BarDelayNoFlipMS int `toml:"bar_delay_no_flip_ms"`
	TextDelayMS      int `toml:"text_delay_ms"`
}

// SubClip contains the seek retry schedule applied on media attach.
type SubClip struct {
	SeekRetryMS []int `toml:"seek_retry_ms"`
}

// Player contains remote embedded player settings.
type Player struct {
	CommandBuffer int `toml:"command_buffer"`
}

// Media contains probing settings for images and local video.
type Media struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
	ProbeImages   bool   `toml:"probe_images"`
	ProbeVideo    bool   `toml:"probe_video"`
}

// Journal contains event journal settings.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Metrics contains Prometheus exposition settings.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ChannelOverride map[string]string `toml:"channel_overrides"`
}

// Config encapsulates all configuration values for overlaycast.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and render API bind address
//   - Director: websocket control channel
//   - Overlays: overlay instances and their channels
//   - Timing: crossfade, hide, playback tick and probe windows
//   - Transition: lower-third reveal stage delays
//   - SubClip: seek retry schedule
//   - Player: remote player command queue
//   - Media: ffprobe and image probing
//   - Journal: event journal retention
//   - Metrics: Prometheus exposition
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Director   Director   `toml:"director"`
	Overlays   []Overlay  `toml:"overlays"`
	Timing     Timing     `toml:"timing"`
	Transition Transition `toml:"transition"`
	SubClip    SubClip    `toml:"subclip"`
	Player     Player     `toml:"player"`
	Media      Media      `toml:"media"`
	Journal    Journal    `toml:"journal"`
	Metrics    Metrics    `toml:"metrics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load resolves the config file, decodes it over the defaults, then applies
// OVERLAYCAST_* environment overrides, normalization and validation. It also
// reports the resolved path and whether a file was found there; a missing
// file is not an error.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := cfg.decodeFile(resolved); err != nil {
			return nil, "", false, err
		}
	}
	for _, step := range []func() error{cfg.applyEnv, cfg.normalize, cfg.Validate} {
		if err := step(); err != nil {
			return nil, "", false, err
		}
	}
	return &cfg, resolved, exists, nil
}

func (c *Config) decodeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	// Overlays from the file replace the default set instead of appending.
	c.Overlays = nil
	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// resolveConfigPath honours an explicit path even when it does not exist yet.
// Otherwise it prefers the XDG config file, then ./overlaycast.toml, falling
// back to the XDG location.
func resolveConfigPath(explicit string) (string, bool, error) {
	if explicit != "" {
		expanded, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(expanded)
		if err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, exists, nil
	}

	userPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("overlaycast.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, projectPath} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return !info.IsDir(), nil
	}
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "overlaycast.sock")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "overlaycast.lock")
}

// JournalPath returns the SQLite event journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// FFprobeBinary returns the ffprobe executable used for media probing.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Media.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.Media.FFprobeBinary
}

// ReconnectDelay returns the fixed delay between abnormal closure and redial.
func (c *Config) ReconnectDelay() time.Duration {
	return Millis(c.Director.ReconnectDelayMS)
}

// HandshakeTimeout bounds the websocket upgrade.
func (c *Config) HandshakeTimeout() time.Duration {
	return Millis(c.Director.HandshakeTimeoutMS)
}

// CrossfadeWindow is how long the outgoing item stays rendered after a show.
func (c *Config) CrossfadeWindow() time.Duration {
	return Millis(c.Timing.CrossfadeMS)
}

// HideWindow is the exit animation length before state is cleared.
func (c *Config) HideWindow() time.Duration {
	return Millis(c.Timing.HideMS)
}

// StateTick is the playback state report interval.
func (c *Config) StateTick() time.Duration {
	return Millis(c.Timing.StateTickMS)
}

// ProbeTimeout bounds a single media probe.
func (c *Config) ProbeTimeout() time.Duration {
	return Millis(c.Timing.ProbeTimeoutMS)
}

// SeekRetries returns the sub-clip seek retry offsets.
func (c *Config) SeekRetries() []time.Duration {
	out := make([]time.Duration, 0, len(c.SubClip.SeekRetryMS))
	for _, ms := range c.SubClip.SeekRetryMS {
		out = append(out, Millis(ms))
	}
	return out
}

// OverlayByName finds an overlay declaration.
func (c *Config) OverlayByName(name string) (Overlay, bool) {
	for _, overlay := range c.Overlays {
		if overlay.Name == name {
			return overlay, true
		}
	}
	return Overlay{}, false
}

// Millis converts a millisecond config value.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// expandPath resolves a leading ~ to the home directory and returns an
// absolute, cleaned path. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value, "~"))
	}
	absolute, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "overlaycast")
	}
	return defaultStateDirFallback
}

// CreateSample writes the commented sample configuration to path, creating
// parent directories.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
