package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"overlaycast/internal/chapters"
	"overlaycast/internal/clock"
	"overlaycast/internal/logging"
	"overlaycast/internal/protocol"
	"overlaycast/internal/subclip"
)

// DefaultTick is the state reporting interval.
const DefaultTick = time.Second

// Reporter sends playback state upstream.
type Reporter interface {
	ReportState(ctx context.Context, report protocol.StateReport) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, report protocol.StateReport) error

func (f ReporterFunc) ReportState(ctx context.Context, report protocol.StateReport) error {
	return f(ctx, report)
}

// Options configures a Controller.
type Options struct {
	Channel     string
	Clock       clock.Clock
	Tick        time.Duration
	Reporter    Reporter
	SubClip     *protocol.SubClipConfig
	SeekRetries []time.Duration
	Chapters    []protocol.Chapter
	// Leases and LeaseKey claim exclusive ownership of a remote player.
	Leases   *Leases
	LeaseKey string
	// OnTick runs after every tick with the reported state.
	OnTick func(protocol.PlaybackState)
	// OnRevoke runs when another controller takes the player over. It is
	// called from the acquiring goroutine and must not wait on it.
	OnRevoke func()
	Logger   *slog.Logger
}

// Controller drives one source for one overlay item.
type Controller struct {
	mu          sync.Mutex
	src         Source
	channel     string
	clock       clock.Clock
	tickEvery   time.Duration
	reporter    Reporter
	sub         *subclip.Controller
	chapterList []protocol.Chapter
	leases      *Leases
	leaseKey    string
	lease       *Lease
	onTick      func(protocol.PlaybackState)
	onRevoke    func()
	logger      *slog.Logger

	timer    clock.Timer
	lastTick time.Time
	started  bool
	closed   bool
	revoked  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewController wraps src. Nothing runs until Start.
func NewController(src Source, opts Options) *Controller {
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		src:         src,
		channel:     opts.Channel,
		clock:       clock.OrReal(opts.Clock),
		tickEvery:   tick,
		reporter:    opts.Reporter,
		chapterList: protocol.SortChapters(opts.Chapters),
		leases:      opts.Leases,
		leaseKey:    opts.LeaseKey,
		onTick:      opts.OnTick,
		onRevoke:    opts.OnRevoke,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	if opts.SubClip != nil {
		c.sub = subclip.New(*opts.SubClip, c.clock, opts.SeekRetries)
	}
	return c
}

// Start claims the player, attaches the sub-clip window, optionally starts
// playback and begins ticking.
func (c *Controller) Start(autoplay bool) {
	if c.leases != nil && c.leaseKey != "" {
		lease := c.leases.Acquire(c.leaseKey, c.revoke)
		c.mu.Lock()
		c.lease = lease
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.started {
		return
	}
	c.started = true
	if c.sub != nil {
		c.sub.Attach(c.src)
	}
	if autoplay {
		c.src.Play()
	}
	c.lastTick = c.clock.Now()
	c.timer = c.clock.AfterFunc(c.tickEvery, c.tick)
	select {
	case <-c.src.Ready():
		if c.sub != nil {
			c.sub.OnReady()
		}
	default:
		go c.watchReady(c.src.Ready())
	}
}

func (c *Controller) watchReady(ready <-chan struct{}) {
	select {
	case <-ready:
	case <-c.ctx.Done():
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sub == nil {
		return
	}
	c.sub.OnReady()
}

func (c *Controller) tick() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.src.Advance(now.Sub(c.lastTick))
	c.lastTick = now
	state := c.src.State()
	if c.sub != nil {
		if outcome := c.sub.Tick(state.CurrentTime, state.IsPlaying); outcome != subclip.OutcomeNone {
			c.logger.Debug("sub-clip end reached",
				logging.String("outcome", outcome.String()),
				logging.Float64("position", state.CurrentTime),
			)
			state = c.src.State()
		}
	}
	c.timer = c.clock.AfterFunc(c.tickEvery, c.tick)
	reporter, onTick, ctx := c.reporter, c.onTick, c.ctx
	c.mu.Unlock()

	if reporter != nil {
		if err := reporter.ReportState(ctx, protocol.NewStateReport(c.channel, state)); err != nil {
			c.logger.Debug("state report not sent", logging.Error(err))
		}
	}
	if onTick != nil {
		onTick(state)
	}
}

// State returns the source state.
func (c *Controller) State() protocol.PlaybackState {
	return c.src.State()
}

// Source returns the controlled element.
func (c *Controller) Source() Source { return c.src }

// Chapters returns the chapter list in start-time order.
func (c *Controller) Chapters() []protocol.Chapter {
	return append([]protocol.Chapter(nil), c.chapterList...)
}

// CurrentChapter returns the chapter containing the current position.
func (c *Controller) CurrentChapter() (protocol.Chapter, bool) {
	return chapters.Current(c.chapterList, c.src.State().CurrentTime)
}

// SubClip returns the enforced window, if any.
func (c *Controller) SubClip() *protocol.SubClipConfig {
	if c.sub == nil {
		return nil
	}
	cfg := c.sub.Config()
	return &cfg
}

// Closed reports whether the controller was closed or revoked.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Revoked reports whether another controller took the player over.
func (c *Controller) Revoked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked
}

func (c *Controller) Play() error   { return c.do(func(s Source) { s.Play() }) }
func (c *Controller) Pause() error  { return c.do(func(s Source) { s.Pause() }) }
func (c *Controller) Mute() error   { return c.do(func(s Source) { s.SetMuted(true) }) }
func (c *Controller) Unmute() error { return c.do(func(s Source) { s.SetMuted(false) }) }

// Seek moves to seconds.
func (c *Controller) Seek(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("%w: seek time %v", protocol.ErrInvalidPayload, seconds)
	}
	return c.do(func(s Source) { s.Seek(seconds) })
}

// NextChapter seeks to the first chapter starting after the current position.
func (c *Controller) NextChapter() (protocol.Chapter, error) {
	return c.Chapter(protocol.TypeChapterNext, protocol.ChapterJumpPayload{})
}

// PreviousChapter seeks to the start of the chapter containing the current
// position.
func (c *Controller) PreviousChapter() (protocol.Chapter, error) {
	return c.Chapter(protocol.TypeChapterPrevious, protocol.ChapterJumpPayload{})
}

// JumpChapter seeks to the chapter identified by ref (id, then index).
func (c *Controller) JumpChapter(ref string) (protocol.Chapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocol.Chapter{}, ErrClosed
	}
	ch, err := chapters.Jump(c.chapterList, ref)
	if err != nil {
		return protocol.Chapter{}, err
	}
	c.src.Seek(ch.StartTime)
	return ch, nil
}

// Chapter resolves a chapter navigation event against the live position and
// seeks to the result.
func (c *Controller) Chapter(eventType string, jump protocol.ChapterJumpPayload) (protocol.Chapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return protocol.Chapter{}, ErrClosed
	}
	if len(c.chapterList) == 0 {
		return protocol.Chapter{}, fmt.Errorf("%w: item has no chapters", protocol.ErrNoChapter)
	}
	ch, err := chapters.Resolve(c.chapterList, eventType, c.src.State().CurrentTime, jump)
	if err != nil {
		return protocol.Chapter{}, err
	}
	c.src.Seek(ch.StartTime)
	return ch, nil
}

// HandlePlayerEvent feeds a renderer notification into a remote source.
func (c *Controller) HandlePlayerEvent(evt protocol.PlayerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	remote, ok := c.src.(*RemotePlayer)
	if !ok {
		return fmt.Errorf("%w: active media is not an embedded player", protocol.ErrNoMedia)
	}
	if remote.HandleEvent(evt) {
		c.logger.Debug("embedded player ready", logging.String("player", remote.ID()))
	}
	return nil
}

// Close stops ticking, stops the source and gives the player up.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopLocked()
	c.src.Stop()
	c.src.Close()
	lease := c.lease
	c.mu.Unlock()
	lease.Release()
}

func (c *Controller) revoke() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.revoked = true
	c.stopLocked()
	c.src.Close()
	onRevoke := c.onRevoke
	c.mu.Unlock()
	c.logger.Debug("player taken over by a newer item", logging.String("player", c.leaseKey))
	if onRevoke != nil {
		onRevoke()
	}
}

func (c *Controller) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.sub != nil {
		c.sub.Detach()
	}
	c.cancel()
}

func (c *Controller) do(fn func(Source)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	fn(c.src)
	return nil
}
