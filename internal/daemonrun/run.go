package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"overlaycast/internal/api"
	"overlaycast/internal/config"
	"overlaycast/internal/daemon"
	"overlaycast/internal/deps"
	"overlaycast/internal/ipc"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/media"
	"overlaycast/internal/metrics"
	"overlaycast/internal/overlay"
	"overlaycast/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location derived from the config.
	SocketPath string
}

// Run starts the overlaycast daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("overlaycast-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:           level,
		Format:          cfg.Logging.Format,
		FloorLevel:      logging.FloorLevel(level, cfg.Logging.ChannelOverride),
		OutputPaths:     []string{"stdout"},
		JSONOutputPaths: []string{logPath},
		Development:     opts.Development,
		Stream:          logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	sessionID := uuid.NewString()
	dependencies := preflight.CheckSystemDeps(signalCtx, cfg)
	logDependencySnapshot(logger, cfg, dependencies)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update overlaycast.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "overlaycast-*.log", Exclude: []string{logPath}},
	)
	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, result := range preflight.Failed(preflight.RunAll(signalCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "overlays may not receive director events"),
			logging.String(logging.FieldErrorHint, "verify the director url and state directory permissions"),
		)
	}

	var collectors *metrics.Metrics
	if cfg.Metrics.Enabled {
		collectors = metrics.New()
	}
	imageProber, videoProber := buildProbers(cfg, dependencies)
	manager := overlay.NewManager(cfg, overlay.Deps{
		ImageProber: imageProber,
		VideoProber: videoProber,
		Metrics:     collectors,
		Logger:      logger,
	})

	var store *journal.Journal
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg)
		if err != nil {
			logging.ErrorWithContext(logger, "open event journal", "journal_open_failed",
				logging.String("path", cfg.JournalPath()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "Check state_dir permissions or set journal.enabled = false"))
			manager.Close()
			return err
		}
	}

	d, err := daemon.New(cfg, logger, daemon.Options{
		Manager:      manager,
		Journal:      store,
		Metrics:      collectors,
		LogHub:       logHub,
		SessionID:    sessionID,
		Dependencies: dependencyStatuses(dependencies),
	})
	if err != nil {
		manager.Close()
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and that no other daemon holds the lock"),
			logging.String(logging.FieldImpact, "overlays will not receive director events"),
		)
	}

	<-signalCtx.Done()
	logger.Info("overlaycast daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
		logging.String("session_id", sessionID))
	return nil
}

// PIDPath is where the running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "overlaycast.pid")
}

// buildProbers wires the media probers the config enables. Video probing is
// skipped entirely when ffprobe cannot be resolved.
func buildProbers(cfg *config.Config, dependencies []deps.Status) (media.Prober, media.Prober) {
	var imageProber, videoProber media.Prober
	if cfg.Media.ProbeImages {
		imageProber = media.ImageHeader{}
	}
	if cfg.Media.ProbeVideo {
		binary := cfg.FFprobeBinary()
		available := true
		for _, status := range dependencies {
			if status.Name == "FFprobe" {
				binary, available = status.Command, status.Available
			}
		}
		if available {
			videoProber = media.FFprobe{Binary: binary, Timeout: cfg.ProbeTimeout()}
		}
	}
	return imageProber, videoProber
}

func dependencyStatuses(statuses []deps.Status) []api.DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]api.DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, api.DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}

// ensureCurrentLogPointer points logDir/overlaycast.log at this run's log
// file, with a hard link where symlinks are unsupported.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	pointer := filepath.Join(logDir, "overlaycast.log")
	if err := os.Remove(pointer); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	err := os.Symlink(target, pointer)
	if err != nil {
		err = os.Link(target, pointer)
	}
	if err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, fmt.Appendf(nil, "%d\n", os.Getpid()), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, dependencies []deps.Status) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("director_url", cfg.Director.URL),
		logging.Bool("director_token_present", strings.TrimSpace(cfg.Director.Token) != ""),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Bool("probe_images", cfg.Media.ProbeImages),
		logging.Bool("probe_video", cfg.Media.ProbeVideo),
		logging.Bool("journal_enabled", cfg.Journal.Enabled),
		logging.Int("overlays", len(cfg.Overlays)),
	}
	for _, status := range dependencies {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
