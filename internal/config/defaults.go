package config

const (
	defaultConfigPath       = "~/.config/overlaycast/config.toml"
	defaultStateDirFallback = "~/.local/state/overlaycast"
	defaultLogDir           = "~/.local/state/overlaycast/logs"
	defaultLogRetentionDays = 14
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultAPIBind          = "127.0.0.1:7610"
	defaultDirectorURL      = "ws://127.0.0.1:7600/ws"
	defaultReconnectDelayMS = 3000
	defaultHandshakeTimeout = 10000
	defaultAckBuffer        = 4096
	defaultDispatchBuffer   = 128
	defaultCrossfadeMS      = 500
	defaultHideMS           = 600
	defaultStateTickMS      = 1000
	defaultProbeTimeoutMS   = 3000
	defaultLogoDelayMS      = 0
	defaultFlipDelayMS      = 1200
	defaultBarDelayMS       = 1800
	defaultBarDelayNoFlipMS = 400
	defaultTextDelayMS      = 2300
	defaultCommandBuffer    = 64
	defaultFFprobeBinary    = "ffprobe"
	defaultJournalRetention = 7
	defaultOverlayKind      = "lower-third"
	kindLowerThird          = "lower-third"
	kindCountdown           = "countdown"
	kindPoster              = "poster"
	kindChat                = "chat"
)

var defaultSeekRetryMS = []int{50, 100, 500}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Director: Director{
			URL:                defaultDirectorURL,
			ReconnectDelayMS:   defaultReconnectDelayMS,
			HandshakeTimeoutMS: defaultHandshakeTimeout,
			AckBuffer:          defaultAckBuffer,
			DispatchBuffer:     defaultDispatchBuffer,
		},
		Overlays: []Overlay{
			{Name: "lower-third", Channel: "lower-third", Kind: kindLowerThird},
			{Name: "countdown", Channel: "countdown", Kind: kindCountdown},
			{Name: "poster", Channel: "poster", Kind: kindPoster},
			{Name: "chat", Channel: "chat-highlight", Kind: kindChat},
		},
		Timing: Timing{
			CrossfadeMS:    defaultCrossfadeMS,
			HideMS:         defaultHideMS,
			StateTickMS:    defaultStateTickMS,
			ProbeTimeoutMS: defaultProbeTimeoutMS,
		},
		Transition: Transition{
			LogoDelayMS:      defaultLogoDelayMS,
			FlipDelayMS:      defaultFlipDelayMS,
			BarDelayMS:       defaultBarDelayMS,
			BarDelayNoFlipMS: defaultBarDelayNoFlipMS,
			TextDelayMS:      defaultTextDelayMS,
		},
		SubClip: SubClip{
			SeekRetryMS: append([]int(nil), defaultSeekRetryMS...),
		},
		Player: Player{
			CommandBuffer: defaultCommandBuffer,
		},
		Media: Media{
			FFprobeBinary: defaultFFprobeBinary,
			ProbeImages:   true,
			ProbeVideo:    true,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetention,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
