package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDirector(); err != nil {
		return err
	}
	if err := c.validateOverlays(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateTransition(); err != nil {
		return err
	}
	if err := c.validateSubClip(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Journal.Enabled && c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateDirector() error {
	if c.Director.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("director.url is required. Set OVERLAYCAST_DIRECTOR_URL or edit %s (create with 'overlaycast config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Director.URL)
	if err != nil {
		return fmt.Errorf("director.url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("director.url must use ws or wss, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("director.url must include a host")
	}
	return ensurePositiveMap(map[string]int{
		"director.reconnect_delay_ms":   c.Director.ReconnectDelayMS,
		"director.handshake_timeout_ms": c.Director.HandshakeTimeoutMS,
		"director.ack_buffer":           c.Director.AckBuffer,
		"director.dispatch_buffer":      c.Director.DispatchBuffer,
	})
}

func (c *Config) validateOverlays() error {
	if len(c.Overlays) == 0 {
		return errors.New("at least one [[overlays]] entry is required")
	}
	names := make(map[string]struct{}, len(c.Overlays))
	channels := make(map[string]string, len(c.Overlays))
	for i, overlay := range c.Overlays {
		if overlay.Name == "" {
			return fmt.Errorf("overlays[%d].name must be set", i)
		}
		if _, dup := names[overlay.Name]; dup {
			return fmt.Errorf("overlays[%d].name %q is duplicated", i, overlay.Name)
		}
		names[overlay.Name] = struct{}{}
		if owner, dup := channels[overlay.Channel]; dup {
			return fmt.Errorf("overlays[%d].channel %q is already used by overlay %q", i, overlay.Channel, owner)
		}
		channels[overlay.Channel] = overlay.Name
		switch overlay.Kind {
		case kindLowerThird, kindCountdown, kindPoster, kindChat:
		default:
			return fmt.Errorf("overlays[%d].kind %q is not one of lower-third, countdown, poster, chat", i, overlay.Kind)
		}
	}
	return nil
}

func (c *Config) validateTiming() error {
	return ensurePositiveMap(map[string]int{
		"timing.crossfade_ms":     c.Timing.CrossfadeMS,
		"timing.hide_ms":          c.Timing.HideMS,
		"timing.state_tick_ms":    c.Timing.StateTickMS,
		"timing.probe_timeout_ms": c.Timing.ProbeTimeoutMS,
	})
}

func (c *Config) validateTransition() error {
	t := c.Transition
	for key, value := range map[string]int{
		"transition.logo_delay_ms":        t.LogoDelayMS,
		"transition.flip_delay_ms":        t.FlipDelayMS,
		"transition.bar_delay_ms":         t.BarDelayMS,
		"transition.bar_delay_no_flip_ms": t.BarDelayNoFlipMS,
		"transition.text_delay_ms":        t.TextDelayMS,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if t.BarDelayNoFlipMS > t.BarDelayMS {
		return errors.New("transition.bar_delay_no_flip_ms must not exceed transition.bar_delay_ms")
	}
	return nil
}

func (c *Config) validateSubClip() error {
	prev := 0
	for i, ms := range c.SubClip.SeekRetryMS {
		if ms <= 0 {
			return fmt.Errorf("subclip.seek_retry_ms[%d] must be positive", i)
		}
		if ms < prev {
			return errors.New("subclip.seek_retry_ms must be ascending")
		}
		prev = ms
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	for channel, lvl := range c.Logging.ChannelOverride {
		switch strings.ToLower(lvl) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.channel_overrides.%s has invalid level %q", channel, lvl)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
