// Package subclip plays a bounded window of a longer media source.
//
// Seeks issued before a media element has its metadata are routinely ignored,
// so attaching a window seeks to its start immediately, again on a short
// retry schedule, and again when the element reports ready.
package subclip

import (
	"sync"
	"time"

	"overlaycast/internal/clock"
	"overlaycast/internal/protocol"
)

// DefaultRetries is the seek retry schedule used when none is configured.
var DefaultRetries = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 500 * time.Millisecond}

// Target is the media element a window is enforced on.
type Target interface {
	Seek(seconds float64)
	Pause()
}

// playhead is implemented by targets that report their position. Pending
// retries are skipped once such a target is inside the window.
type playhead interface {
	State() protocol.PlaybackState
}

// Outcome reports what a tick did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeLooped
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLooped:
		return "looped"
	case OutcomeStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Controller enforces one window on whichever target is attached.
type Controller struct {
	mu      sync.Mutex
	cfg     protocol.SubClipConfig
	clock   clock.Clock
	retries []time.Duration
	target  Target
	gen     uint64
	timers  []clock.Timer
	stopped bool
	seeks   int
}

// New builds a controller for cfg. cfg is expected to be normalized.
func New(cfg protocol.SubClipConfig, c clock.Clock, retries []time.Duration) *Controller {
	if len(retries) == 0 {
		retries = DefaultRetries
	}
	if cfg.EndBehavior == "" {
		cfg.EndBehavior = protocol.EndStop
	}
	return &Controller{
		cfg:     cfg,
		clock:   clock.OrReal(c),
		retries: append([]time.Duration(nil), retries...),
	}
}

// Config returns the window.
func (c *Controller) Config() protocol.SubClipConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Attach binds a freshly constructed media element. Any retry state from a
// previous element is discarded before the new seeks are scheduled.
func (c *Controller) Attach(target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.target = target
	if target == nil {
		return
	}
	gen := c.gen
	c.seekLocked()
	for _, delay := range c.retries {
		c.timers = append(c.timers, c.clock.AfterFunc(delay, func() {
			c.retry(gen)
		}))
	}
}

// OnReady re-issues the start seek once the element has metadata.
func (c *Controller) OnReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil || c.stopped {
		return
	}
	c.seekLocked()
}

// Detach cancels pending retries and forgets the target.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.target = nil
}

// Tick enforces the end of the window at currentTime. A stop window pauses
// the target on the first tick at or past the end and again on any later
// tick where the target is playing there.
func (c *Controller) Tick(currentTime float64, playing bool) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil || c.cfg.EndTime == nil {
		return OutcomeNone
	}
	if currentTime < *c.cfg.EndTime {
		c.stopped = false
		return OutcomeNone
	}
	if c.cfg.EndBehavior == protocol.EndLoop {
		c.seekLocked()
		return OutcomeLooped
	}
	if c.stopped && !playing {
		return OutcomeNone
	}
	c.stopped = true
	c.target.Pause()
	return OutcomeStopped
}

// Seeks reports how many start seeks were issued for the current target.
func (c *Controller) Seeks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeks
}

func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.target == nil || c.stopped || c.insideLocked() {
		return
	}
	c.seekLocked()
}

func (c *Controller) insideLocked() bool {
	p, ok := c.target.(playhead)
	if !ok {
		return false
	}
	pos := p.State().CurrentTime
	return pos >= c.cfg.StartTime && (c.cfg.EndTime == nil || pos < *c.cfg.EndTime)
}

func (c *Controller) seekLocked() {
	c.seeks++
	c.target.Seek(c.cfg.StartTime)
}

func (c *Controller) resetLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.gen++
	c.stopped = false
	c.seeks = 0
}
