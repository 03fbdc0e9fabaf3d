package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"overlaycast/internal/clock"
	"overlaycast/internal/logging"
	"overlaycast/internal/media"
	"overlaycast/internal/metrics"
	"overlaycast/internal/playback"
	"overlaycast/internal/protocol"
	"overlaycast/internal/transition"
)

// Kinds understood by the transition layer.
const (
	KindLowerThird = "lower-third"
	KindCountdown  = "countdown"
	KindPoster     = "poster"
	KindChat       = "chat"
)

const (
	DefaultCrossfadeWindow = 500 * time.Millisecond
	DefaultHideWindow      = 600 * time.Millisecond
	DefaultProbeTimeout    = 3 * time.Second

	watchBuffer = 16
)

// ErrClosed is returned by a machine after Close.
var ErrClosed = errors.New("overlay closed")

// Options configures a Machine.
type Options struct {
	Name            string
	Channel         string
	Kind            string
	Clock           clock.Clock
	CrossfadeWindow time.Duration
	HideWindow      time.Duration
	StateTick       time.Duration
	SeekRetries     []time.Duration
	Transition      transition.Timing
	// ImageProber resolves the aspect ratio of images that do not declare
	// one. Nil skips probing and uses media.DefaultAspectRatio.
	ImageProber  media.Prober
	VideoProber  media.Prober
	ProbeTimeout time.Duration
	Reporter     playback.Reporter
	Leases       *playback.Leases
	PlayerQueue  *playback.CommandQueue
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Machine is the state machine of one overlay instance.
type Machine struct {
	opts   Options
	clock  clock.Clock
	logger *slog.Logger
	sched  *transition.Scheduler
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	phase          Phase
	current        *entry
	previous       *entry
	gen            uint64
	probeSeq       uint64
	autoSeq        uint64
	crossfadeTimer clock.Timer
	hideTimer      clock.Timer
	autoHideTimer  clock.Timer
	reporter       playback.Reporter
	version        uint64
	updatedAt      time.Time
	watchers       map[uint64]chan Snapshot
	nextWatcher    uint64
	closed         bool
}

// NewMachine builds a hidden overlay.
func NewMachine(opts Options) *Machine {
	if opts.Channel == "" {
		opts.Channel = opts.Name
	}
	if opts.Kind == "" {
		opts.Kind = KindLowerThird
	}
	if opts.CrossfadeWindow <= 0 {
		opts.CrossfadeWindow = DefaultCrossfadeWindow
	}
	if opts.HideWindow <= 0 {
		opts.HideWindow = DefaultHideWindow
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.PlayerQueue == nil {
		opts.PlayerQueue = playback.NewCommandQueue(playback.DefaultCommandBuffer, nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		opts:     opts,
		clock:    clock.OrReal(opts.Clock),
		logger:   logger.With(logging.String(logging.FieldOverlay, opts.Name), logging.String(logging.FieldChannel, opts.Channel)),
		ctx:      ctx,
		cancel:   cancel,
		phase:    PhaseHidden,
		reporter: opts.Reporter,
		watchers: make(map[uint64]chan Snapshot),
	}
	m.updatedAt = m.clock.Now()
	m.sched = transition.NewScheduler(m.clock, m.onFlagsChanged)
	return m
}

// Name returns the overlay name.
func (m *Machine) Name() string { return m.opts.Name }

// Channel returns the logical channel the overlay listens on.
func (m *Machine) Channel() string { return m.opts.Channel }

// Kind returns the overlay kind.
func (m *Machine) Kind() string { return m.opts.Kind }

// PlayerCommands delivers commands for the overlay's embedded player.
func (m *Machine) PlayerCommands() <-chan protocol.PlayerCommand {
	return m.opts.PlayerQueue.C()
}

// SetReporter replaces the upstream state reporter for media shown from now
// on.
func (m *Machine) SetReporter(r playback.Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporter = r
}

// Handle applies one director envelope.
func (m *Machine) Handle(ctx context.Context, env protocol.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.cancelAutoHideLocked()
	var err error
	switch env.Type {
	case protocol.TypeShow:
		err = m.showLocked(ctx, env)
	case protocol.TypeHide:
		err = m.hideLocked("event")
	case protocol.TypeUpdate:
		err = m.updateLocked(env)
	case protocol.TypePlay, protocol.TypePause, protocol.TypeSeek, protocol.TypeMute, protocol.TypeUnmute:
		err = m.transportLocked(env)
	case protocol.TypeChapterNext, protocol.TypeChapterPrevious, protocol.TypeChapterJump:
		err = m.chapterLocked(env)
	default:
		err = fmt.Errorf("%w: %q", protocol.ErrUnsupportedEvent, env.Type)
	}
	m.armAutoHideLocked()
	if err != nil {
		return err
	}
	m.publishLocked()
	return nil
}

// HandlePlayerEvent forwards a renderer notification to the active embedded
// player.
func (m *Machine) HandlePlayerEvent(evt protocol.PlayerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.current == nil || m.current.ctrl == nil {
		return fmt.Errorf("%w: nothing is playing", protocol.ErrNoMedia)
	}
	if err := m.current.ctrl.HandlePlayerEvent(evt); err != nil {
		return err
	}
	if evt.Event == protocol.PlayerEventInfoDelivery {
		m.publishLocked()
	}
	return nil
}

func (m *Machine) showLocked(ctx context.Context, env protocol.Envelope) error {
	fields, err := decodeFields(env.Payload)
	if err != nil {
		return err
	}
	show, err := typedPayload(fields)
	if err != nil {
		return err
	}
	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}
	item := Item{ID: id, Fields: fields, Show: show}
	if show.Media != nil {
		item.AspectRatio = show.Media.AspectRatio
	}

	m.probeSeq++
	if show.Media != nil && show.Media.Type == protocol.MediaImage && item.AspectRatio <= 0 {
		if m.opts.ImageProber == nil {
			item.AspectRatio = media.DefaultAspectRatio
		} else {
			m.launchProbeLocked(ctx, m.probeSeq, item)
			return nil
		}
	}
	m.commitShowLocked(item)
	return nil
}

// launchProbeLocked resolves the image aspect ratio in the background. The
// show is committed only if no later show or hide was handled meanwhile.
func (m *Machine) launchProbeLocked(ctx context.Context, token uint64, item Item) {
	src := item.Show.Media.Src
	logger := logging.WithContext(ctx, m.logger)
	logger.Debug("image probe launched", logging.String("src", src), logging.Uint64("token", token))
	probeCtx, cancel := context.WithTimeout(m.ctx, m.opts.ProbeTimeout)
	go func() {
		defer cancel()
		info, err := m.opts.ImageProber.Probe(probeCtx, src)
		m.commitProbed(token, item, info, err, logger)
	}()
}

func (m *Machine) commitProbed(token uint64, item Item, info media.Info, probeErr error, logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || token != m.probeSeq {
		logger.Debug("stale image probe discarded", logging.Uint64("token", token))
		return
	}
	m.opts.Metrics.Probe(probeErr == nil)
	if probeErr != nil {
		logging.WarnWithContext(logger, "image probe failed; using square layout", "probe_failed",
			logging.String("src", item.Show.Media.Src),
			logging.Error(probeErr),
			logging.String(logging.FieldImpact, "image laid out at aspect ratio 1.0"),
		)
		item.AspectRatio = media.DefaultAspectRatio
	} else {
		item.AspectRatio = info.AspectRatio()
	}
	m.cancelAutoHideLocked()
	m.commitShowLocked(item)
	m.armAutoHideLocked()
	m.publishLocked()
}

func (m *Machine) commitShowLocked(item Item) {
	item.ShownAt = m.clock.Now()
	incoming := &entry{item: item}

	m.gen++
	m.stopTimer(&m.crossfadeTimer)
	m.stopTimer(&m.hideTimer)

	switch m.phase {
	case PhaseVisible, PhaseCrossfade:
		if m.previous != nil {
			m.previous.release()
		}
		m.previous = m.current
		m.current = incoming
		m.phase = PhaseCrossfade
		gen := m.gen
		m.crossfadeTimer = m.clock.AfterFunc(m.opts.CrossfadeWindow, func() {
			m.finishCrossfade(gen)
		})
	default:
		if m.phase == PhaseHiding {
			m.current.release()
		}
		m.previous.release()
		m.previous = nil
		m.current = incoming
		m.phase = PhaseVisible
	}

	m.startPlaybackLocked(incoming)
	m.sched.Start(m.stagesFor(item))
	m.opts.Metrics.SetVisible(m.opts.Name, true)
	m.logger.Info("overlay shown",
		logging.String(logging.FieldEventType, "overlay_shown"),
		logging.String(logging.FieldEventID, item.ID),
		logging.String("phase", string(m.phase)),
	)
}

func (m *Machine) finishCrossfade(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.phase != PhaseCrossfade {
		return
	}
	m.crossfadeTimer = nil
	m.previous.release()
	m.previous = nil
	m.phase = PhaseVisible
	m.publishLocked()
}

func (m *Machine) hideLocked(reason string) error {
	m.probeSeq++
	switch m.phase {
	case PhaseHidden, PhaseHiding:
		return nil
	}
	m.gen++
	m.stopTimer(&m.crossfadeTimer)
	m.previous.release()
	m.previous = nil
	m.phase = PhaseHiding
	m.sched.Exit()
	gen := m.gen
	m.hideTimer = m.clock.AfterFunc(m.opts.HideWindow, func() {
		m.finishHide(gen)
	})
	m.logger.Info("overlay hiding",
		logging.String(logging.FieldEventType, "overlay_hiding"),
		logging.String("reason", reason),
	)
	return nil
}

func (m *Machine) finishHide(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.phase != PhaseHiding {
		return
	}
	m.hideTimer = nil
	m.current.release()
	m.current = nil
	m.phase = PhaseHidden
	m.sched.Cancel()
	m.opts.Metrics.SetVisible(m.opts.Name, false)
	m.publishLocked()
}

func (m *Machine) updateLocked(env protocol.Envelope) error {
	if m.current == nil {
		return fmt.Errorf("%w: update needs a shown item", protocol.ErrNotVisible)
	}
	patch, err := decodeFields(env.Payload)
	if err != nil {
		return err
	}
	merged := mergeFields(m.current.item.Fields, patch)
	show, err := typedPayload(merged)
	if err != nil {
		return err
	}
	m.current.item.Fields = merged
	m.current.item.Show = show
	return nil
}

func (m *Machine) activeController() (*playback.Controller, error) {
	if m.current == nil || m.current.ctrl == nil || m.current.ctrl.Closed() {
		return nil, fmt.Errorf("%w: current item has no playable media", protocol.ErrNoMedia)
	}
	return m.current.ctrl, nil
}

func (m *Machine) transportLocked(env protocol.Envelope) error {
	ctrl, err := m.activeController()
	if err != nil {
		return err
	}
	switch env.Type {
	case protocol.TypePlay:
		err = ctrl.Play()
	case protocol.TypePause:
		err = ctrl.Pause()
	case protocol.TypeMute:
		err = ctrl.Mute()
	case protocol.TypeUnmute:
		err = ctrl.Unmute()
	case protocol.TypeSeek:
		seek, decodeErr := protocol.DecodePayload[protocol.SeekPayload](env.Payload)
		if decodeErr != nil {
			return decodeErr
		}
		err = ctrl.Seek(seek.Time)
	}
	if errors.Is(err, playback.ErrClosed) {
		return fmt.Errorf("%w: %w", protocol.ErrNoMedia, err)
	}
	return err
}

func (m *Machine) chapterLocked(env protocol.Envelope) error {
	ctrl, err := m.activeController()
	if err != nil {
		return err
	}
	jump, err := protocol.DecodePayload[protocol.ChapterJumpPayload](env.Payload)
	if err != nil {
		return err
	}
	ch, err := ctrl.Chapter(env.Type, jump)
	if err != nil {
		if errors.Is(err, playback.ErrClosed) {
			return fmt.Errorf("%w: %w", protocol.ErrNoMedia, err)
		}
		return err
	}
	m.logger.Debug("chapter selected",
		logging.String("chapter", ch.ID),
		logging.Float64("start", ch.StartTime),
	)
	return nil
}

func (m *Machine) startPlaybackLocked(e *entry) {
	ref := e.item.Show.Media
	if !ref.IsPlayable() {
		return
	}
	opts := playback.Options{
		Channel:     m.opts.Channel,
		Clock:       m.clock,
		Tick:        m.opts.StateTick,
		SubClip:     e.item.Show.SubClip,
		SeekRetries: m.opts.SeekRetries,
		Chapters:    e.item.Show.Chapters,
		Logger:      m.logger,
	}
	var src playback.Source
	switch ref.Type {
	case protocol.MediaYouTube:
		src = playback.NewRemotePlayer(m.opts.Name, ref.VideoID, m.opts.PlayerQueue, ref.Muted)
		opts.Leases = m.opts.Leases
		opts.LeaseKey = m.opts.Name
	default:
		if ref.Duration > 0 {
			src = playback.NewLoadedElement(ref.Src, ref.Duration, m.clock, ref.Muted)
		} else {
			src = playback.NewLocalElement(m.ctx, ref.Src, m.opts.VideoProber, m.clock, ref.Muted, m.logger)
		}
	}
	if upstream := m.reporter; upstream != nil {
		// Only the current item reports; an outgoing one keeps ticking for
		// the crossfade but stays quiet.
		opts.Reporter = playback.ReporterFunc(func(ctx context.Context, r protocol.StateReport) error {
			m.mu.Lock()
			current := !m.closed && m.current == e
			m.mu.Unlock()
			if !current {
				return nil
			}
			return upstream.ReportState(ctx, r)
		})
	}
	itemID := e.item.ID
	opts.OnTick = func(protocol.PlaybackState) { m.onPlaybackTick(itemID) }
	e.ctrl = playback.NewController(src, opts)
	e.ctrl.Start(ref.ShouldAutoplay())
}

func (m *Machine) onPlaybackTick(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.current == nil || m.current.item.ID != itemID {
		return
	}
	m.publishLocked()
}

func (m *Machine) onFlagsChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.publishLocked()
}

func (m *Machine) stagesFor(item Item) []transition.Stage {
	if m.opts.Kind == KindLowerThird {
		return transition.LowerThird(m.opts.Transition, strings.TrimSpace(item.Show.SecondaryImage) != "")
	}
	return transition.Simple()
}

func (m *Machine) cancelAutoHideLocked() {
	m.autoSeq++
	m.stopTimer(&m.autoHideTimer)
}

// armAutoHideLocked schedules a hide after the current item's duration.
// Items without a positive duration stay until hidden explicitly.
func (m *Machine) armAutoHideLocked() {
	if m.current == nil || (m.phase != PhaseVisible && m.phase != PhaseCrossfade) {
		return
	}
	seconds := m.current.item.Show.Duration
	if seconds <= 0 {
		return
	}
	seq := m.autoSeq
	m.autoHideTimer = m.clock.AfterFunc(time.Duration(seconds*float64(time.Second)), func() {
		m.autoHide(seq)
	})
}

func (m *Machine) autoHide(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || seq != m.autoSeq {
		return
	}
	m.autoHideTimer = nil
	_ = m.hideLocked("duration elapsed")
	m.publishLocked()
}

func (m *Machine) stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Overlay:   m.opts.Name,
		Channel:   m.opts.Channel,
		Kind:      m.opts.Kind,
		Phase:     m.phase,
		Visible:   m.phase != PhaseHidden,
		Hiding:    m.phase == PhaseHiding,
		Current:   m.current.view(),
		Previous:  m.previous.view(),
		Flags:     m.sched.Flags(),
		Version:   m.version,
		UpdatedAt: m.updatedAt,
	}
	if m.current != nil {
		snap.Transition = m.current.item.Show.Transition
		snap.Chapters = protocol.SortChapters(m.current.item.Show.Chapters)
		if ctrl := m.current.ctrl; ctrl != nil {
			state := ctrl.State()
			snap.Playback = &state
			if ch, ok := ctrl.CurrentChapter(); ok {
				snap.Chapter = &ch
			}
		}
	}
	return snap
}

// Watch streams a snapshot now and after every change until ctx ends. A
// slow reader loses intermediate snapshots, never the latest one.
func (m *Machine) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, watchBuffer)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	m.nextWatcher++
	id := m.nextWatcher
	m.watchers[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}()
	return ch
}

func (m *Machine) publishLocked() {
	m.version++
	m.updatedAt = m.clock.Now()
	if len(m.watchers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, w := range m.watchers {
		for {
			select {
			case w <- snap:
			default:
				select {
				case <-w:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close cancels every timer, releases media and returns to an empty hidden
// state. Watchers are closed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.probeSeq++
	m.autoSeq++
	m.stopTimer(&m.crossfadeTimer)
	m.stopTimer(&m.hideTimer)
	m.stopTimer(&m.autoHideTimer)
	m.previous.release()
	m.current.release()
	m.previous, m.current = nil, nil
	m.phase = PhaseHidden
	m.sched.Cancel()
	m.cancel()
	m.opts.Metrics.SetVisible(m.opts.Name, false)
	for id, w := range m.watchers {
		delete(m.watchers, id)
		close(w)
	}
}
