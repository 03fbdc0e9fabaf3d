package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"overlaycast/internal/api"
	"overlaycast/internal/channel"
	"overlaycast/internal/clock"
	"overlaycast/internal/config"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/overlay"
	"overlaycast/internal/protocol"
)

// Options are the collaborators built by the process entry point.
type Options struct {
	Manager      *overlay.Manager
	Journal      *journal.Journal
	Metrics      *metrics.Metrics
	LogHub       *logging.StreamHub
	Clock        clock.Clock
	SessionID    string
	Dependencies []api.DependencyStatus
}

// Daemon owns the director connection, the render API and the journal
// recorder, and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *overlay.Manager
	journal  *journal.Journal
	recorder *journal.Recorder
	metrics  *metrics.Metrics
	hub      *logging.StreamHub
	clock    clock.Clock
	deps     []api.DependencyStatus

	sessionID string
	lockPath  string
	lock      *flock.Flock

	running atomic.Bool

	mu        sync.Mutex
	client    *channel.Client
	api       *apiServer
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	SessionID    string
	StartedAt    time.Time
	LockFilePath string
	JournalPath  string
	APIAddress   string
	Director     channel.Status
	Overlays     []overlay.Snapshot
	Dropped      uint64
	Dependencies []api.DependencyStatus
}

// New constructs a daemon. Nothing is started until Start.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Manager == nil {
		return nil, errors.New("daemon requires config and overlay manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		manager:   opts.Manager,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		hub:       opts.LogHub,
		clock:     clock.OrReal(opts.Clock),
		deps:      opts.Dependencies,
		sessionID: sessionID,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	if opts.Journal != nil {
		d.recorder = journal.NewRecorder(opts.Journal, retention(cfg), logger)
	}
	return d, nil
}

func retention(cfg *config.Config) time.Duration {
	if cfg.Journal.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
}

// Start acquires the daemon lock, connects to the director, and launches the
// render API and journal recorder.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another overlaycast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	client := channel.New(channel.Options{
		URL:              d.cfg.Director.URL,
		Token:            d.cfg.Director.Token,
		ReconnectDelay:   d.cfg.ReconnectDelay(),
		HandshakeTimeout: d.cfg.HandshakeTimeout(),
		AckBuffer:        d.cfg.Director.AckBuffer,
		DispatchBuffer:   d.cfg.Director.DispatchBuffer,
		Clock:            d.clock,
		Metrics:          d.metrics,
		OnAck:            d.observeAck,
	}, d.logger)
	d.manager.Bind(client)
	if err := client.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start director client: %w", err)
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		_ = client.Close()
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := srv.start(groupCtx); err != nil {
		_ = client.Close()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if d.recorder != nil {
		group.Go(func() error { return d.recorder.Run(groupCtx) })
	}

	d.client = client
	d.api = srv
	d.cancel = cancel
	d.group = group
	d.startedAt = d.clock.Now()
	d.running.Store(true)
	d.logger.Info("overlaycast daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("session_id", d.sessionID),
		logging.String("director", d.cfg.Director.URL),
		logging.Int("overlays", len(d.manager.Names())),
	)
	return nil
}

// Stop disconnects from the director, stops the API and flushes the journal,
// then releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if err := d.client.Close(); err != nil {
		d.logger.Warn("director client close failed", logging.Error(err))
	}
	d.api.stop()
	d.cancel()
	if err := d.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("background task failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.client = nil
	d.api = nil
	d.cancel = nil
	d.group = nil
	d.running.Store(false)
	d.logger.Info("overlaycast daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases every overlay and the journal.
func (d *Daemon) Close() error {
	d.Stop()
	d.manager.Close()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not run since.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

func (d *Daemon) observeAck(evt channel.AckEvent) {
	if d.recorder != nil {
		d.recorder.ObserveAck(evt)
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	client := d.client
	srv := d.api
	startedAt := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		SessionID:    d.sessionID,
		LockFilePath: d.lockPath,
		Overlays:     d.manager.Snapshots(),
		Dependencies: d.deps,
	}
	if status.Running {
		status.StartedAt = startedAt
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
	}
	if d.recorder != nil {
		status.Dropped = d.recorder.Dropped()
	}
	if client != nil {
		status.Director = client.Status()
	} else {
		status.Director = channel.Status{State: channel.StateIdle, URL: d.cfg.Director.URL}
	}
	if srv != nil {
		status.APIAddress = srv.address()
	}
	return status
}

// Overlays returns every overlay's state in configuration order.
func (d *Daemon) Overlays() []overlay.Snapshot {
	return d.manager.Snapshots()
}

// Describe returns one overlay's state by name or channel.
func (d *Daemon) Describe(ref string) (overlay.Snapshot, error) {
	machine, err := d.manager.Resolve(ref)
	if err != nil {
		return overlay.Snapshot{}, err
	}
	return machine.Snapshot(), nil
}

// Send injects a locally produced event for the overlay named by ref. While
// the daemon runs the event goes through the director dispatcher so it is
// ordered with director frames; otherwise it is applied directly. An empty
// id is replaced by a fresh one.
func (d *Daemon) Send(ctx context.Context, ref, eventType, id string, payload json.RawMessage) (protocol.Envelope, error) {
	machine, err := d.manager.Resolve(ref)
	if err != nil {
		return protocol.Envelope{}, err
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return protocol.Envelope{}, fmt.Errorf("%w: event type is required", protocol.ErrMalformed)
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	env := protocol.Envelope{
		Type:    eventType,
		Channel: machine.Channel(),
		ID:      id,
		Payload: payload,
	}

	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client != nil {
		err = client.Inject(ctx, env)
	} else {
		err = machine.Handle(ctx, env)
	}
	if err != nil {
		return env, err
	}
	d.logger.Debug("local event applied",
		logging.String(logging.FieldEventType, "local_event"),
		logging.String(logging.FieldChannel, env.Channel),
		logging.String(logging.FieldEventID, env.ID),
		logging.String("type", env.Type),
	)
	return env, nil
}

// Journal lists recorded events and per-channel totals.
func (d *Daemon) Journal(ctx context.Context, f journal.Filter) ([]journal.Entry, []journal.ChannelStats, error) {
	if d.journal == nil {
		return nil, nil, errors.New("event journal disabled")
	}
	entries, err := d.journal.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	stats, err := d.journal.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return entries, stats, nil
}

// LogStream returns the in-memory log hub, which may be nil.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Metrics returns the collector set, which may be nil.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Manager exposes the overlay manager to the render API.
func (d *Daemon) Manager() *overlay.Manager {
	return d.manager
}
