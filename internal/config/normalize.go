package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the settings that may be supplied through the
// environment. Non-empty values win over the file.
type envOverrides struct {
	DirectorURL   string `env:"OVERLAYCAST_DIRECTOR_URL"`
	DirectorToken string `env:"OVERLAYCAST_DIRECTOR_TOKEN"`
	APIBind       string `env:"OVERLAYCAST_API_BIND"`
	APIToken      string `env:"OVERLAYCAST_API_TOKEN"`
	LogLevel      string `env:"OVERLAYCAST_LOG_LEVEL"`
	LogFormat     string `env:"OVERLAYCAST_LOG_FORMAT"`
	StateDir      string `env:"OVERLAYCAST_STATE_DIR"`
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setIfPresent(&c.Director.URL, overrides.DirectorURL)
	setIfPresent(&c.Director.Token, overrides.DirectorToken)
	setIfPresent(&c.Paths.APIBind, overrides.APIBind)
	setIfPresent(&c.Paths.APIToken, overrides.APIToken)
	setIfPresent(&c.Logging.Level, overrides.LogLevel)
	setIfPresent(&c.Logging.Format, overrides.LogFormat)
	setIfPresent(&c.Paths.StateDir, overrides.StateDir)
	return nil
}

func setIfPresent(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDirector()
	c.normalizeOverlays()
	c.normalizeTiming()
	c.normalizeSubClip()
	c.normalizeLogging()
	if c.Player.CommandBuffer <= 0 {
		c.Player.CommandBuffer = defaultCommandBuffer
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	switch strings.ToLower(c.Paths.APIBind) {
	case "":
		c.Paths.APIBind = defaultAPIBind
	case "off", "none", "disabled":
		c.Paths.APIBind = ""
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeDirector() {
	c.Director.URL = strings.TrimSpace(c.Director.URL)
	c.Director.Token = strings.TrimSpace(c.Director.Token)
	if c.Director.ReconnectDelayMS <= 0 {
		c.Director.ReconnectDelayMS = defaultReconnectDelayMS
	}
	if c.Director.HandshakeTimeoutMS <= 0 {
		c.Director.HandshakeTimeoutMS = defaultHandshakeTimeout
	}
	if c.Director.AckBuffer <= 0 {
		c.Director.AckBuffer = defaultAckBuffer
	}
	if c.Director.DispatchBuffer <= 0 {
		c.Director.DispatchBuffer = defaultDispatchBuffer
	}
}

func (c *Config) normalizeOverlays() {
	for i := range c.Overlays {
		overlay := &c.Overlays[i]
		overlay.Name = strings.TrimSpace(overlay.Name)
		overlay.Channel = strings.TrimSpace(overlay.Channel)
		if overlay.Channel == "" {
			overlay.Channel = overlay.Name
		}
		overlay.Kind = strings.ToLower(strings.TrimSpace(overlay.Kind))
		if overlay.Kind == "" {
			overlay.Kind = defaultOverlayKind
		}
	}
}

func (c *Config) normalizeTiming() {
	if c.Timing.CrossfadeMS <= 0 {
		c.Timing.CrossfadeMS = defaultCrossfadeMS
	}
	if c.Timing.HideMS <= 0 {
		c.Timing.HideMS = defaultHideMS
	}
	if c.Timing.StateTickMS <= 0 {
		c.Timing.StateTickMS = defaultStateTickMS
	}
	if c.Timing.ProbeTimeoutMS <= 0 {
		c.Timing.ProbeTimeoutMS = defaultProbeTimeoutMS
	}
}

func (c *Config) normalizeSubClip() {
	if len(c.SubClip.SeekRetryMS) == 0 {
		c.SubClip.SeekRetryMS = append([]int(nil), defaultSeekRetryMS...)
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		format = "console"
	case "json":
	default:
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level

	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}

	if len(c.Logging.ChannelOverride) > 0 {
		normalized := make(map[string]string, len(c.Logging.ChannelOverride))
		for channel, lvl := range c.Logging.ChannelOverride {
			channel = strings.TrimSpace(channel)
			lvl = strings.ToLower(strings.TrimSpace(lvl))
			if channel == "" || lvl == "" {
				continue
			}
			normalized[channel] = lvl
		}
		c.Logging.ChannelOverride = normalized
	}
}
