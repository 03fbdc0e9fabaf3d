package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"overlaycast/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// FloorLevel is the most verbose level any WithLevelOverride logger will
	// ask for. Output handlers are built at this level and the returned logger
	// filters back up to Level.
	FloorLevel string
	// OutputPaths receive records in Format ("stdout", "stderr", or files).
	OutputPaths []string
	// JSONOutputPaths always receive JSON regardless of Format.
	JSONOutputPaths []string
	Development     bool
	Stream          *StreamHub
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	floor := level
	if strings.TrimSpace(opts.FloorLevel) != "" {
		if candidate := ParseLevel(opts.FloorLevel); candidate < floor {
			floor = candidate
		}
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(floor)

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 && len(opts.JSONOutputPaths) == 0 {
		outputs = []string{"stdout"}
	}

	var handlers []slog.Handler
	if len(outputs) > 0 {
		writer, err := openWriters(outputs)
		if err != nil {
			return nil, err
		}
		switch format {
		case "json":
			handlers = append(handlers, newJSONHandler(writer, levelVar, addSource))
		case "console", "text":
			handlers = append(handlers, newPrettyHandler(writer, levelVar, addSource))
		default:
			return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
		}
	}
	if len(opts.JSONOutputPaths) > 0 {
		writer, err := openWriters(opts.JSONOutputPaths)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, newJSONHandler(writer, levelVar, addSource))
	}

	handler := newFanoutHandler(handlers...)
	handler = newStreamHandler(handler, opts.Stream)
	if floor < level {
		handler = newLevelOverrideHandler(handler, level)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger using application config defaults. Records
// go to stdout in the configured format and to overlaycast.log as JSON.
func NewFromConfig(cfg *config.Config, hub *StreamHub) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Stream: hub})
	}

	opts := Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		FloorLevel:  FloorLevel(cfg.Logging.Level, cfg.Logging.ChannelOverride),
		OutputPaths: []string{"stdout"},
		Stream:      hub,
	}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		opts.JSONOutputPaths = []string{filepath.Join(cfg.Paths.LogDir, "overlaycast.log")}
	}
	return New(opts)
}

// FloorLevel returns the most verbose of base and any per-channel override.
func FloorLevel(base string, overrides map[string]string) string {
	floor := ParseLevel(base)
	label := base
	for _, lvl := range overrides {
		if parsed := ParseLevel(lvl); parsed < floor {
			floor = parsed
			label = lvl
		}
	}
	return label
}

// ParseLevel maps a config level string onto slog levels. Unknown values map
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
