package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"overlaycast/internal/clock"
	"overlaycast/internal/logging"
	"overlaycast/internal/media"
	"overlaycast/internal/protocol"
)

// LocalElement is a media file played by the renderer from a URL the engine
// hands it. Position is computed from the clock: the element remembers where
// it was when it last started or seeked and adds elapsed wall time while
// playing.
type LocalElement struct {
	mu        sync.Mutex
	clock     clock.Clock
	src       string
	duration  float64
	muted     bool
	playing   bool
	anchorAt  time.Time
	anchorPos float64
	loaded    bool
	closed    bool
	ready     chan struct{}
	cancel    context.CancelFunc
}

// NewLocalElement starts loading metadata for src in the background.
func NewLocalElement(ctx context.Context, src string, prober media.Prober, c clock.Clock, muted bool, logger *slog.Logger) *LocalElement {
	probeCtx, cancel := context.WithCancel(ctx)
	e := &LocalElement{
		clock:  clock.OrReal(c),
		src:    src,
		muted:  muted,
		ready:  make(chan struct{}),
		cancel: cancel,
	}
	e.anchorAt = e.clock.Now()
	if prober == nil {
		e.markLoaded(0)
		cancel()
		return e
	}
	go func() {
		defer cancel()
		info, err := prober.Probe(probeCtx, src)
		if err != nil {
			if probeCtx.Err() != nil {
				return
			}
			logging.WarnWithContext(logger, "media metadata unavailable", "metadata_probe_failed",
				logging.String("src", src),
				logging.Error(err),
				logging.String(logging.FieldImpact, "duration unknown; sub-clip end still enforced"),
			)
		}
		e.markLoaded(info.Duration)
	}()
	return e
}

// NewLoadedElement builds an element whose duration is already known, so
// seeks apply immediately.
func NewLoadedElement(src string, duration float64, c clock.Clock, muted bool) *LocalElement {
	e := &LocalElement{
		clock: clock.OrReal(c),
		src:   src,
		muted: muted,
		ready: make(chan struct{}),
	}
	e.anchorAt = e.clock.Now()
	e.markLoaded(duration)
	return e
}

func (e *LocalElement) markLoaded(duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.loaded {
		return
	}
	e.duration = duration
	e.loaded = true
	close(e.ready)
}

// Src returns the element's source URL.
func (e *LocalElement) Src() string { return e.src }

func (e *LocalElement) State() protocol.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return protocol.PlaybackState{
		CurrentTime: e.positionLocked(),
		Duration:    e.duration,
		IsPlaying:   e.playing,
		IsMuted:     e.muted,
	}
}

func (e *LocalElement) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.playing {
		return
	}
	e.anchorPos = e.positionLocked()
	e.anchorAt = e.clock.Now()
	e.playing = true
}

func (e *LocalElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.playing {
		return
	}
	e.anchorPos = e.positionLocked()
	e.anchorAt = e.clock.Now()
	e.playing = false
}

func (e *LocalElement) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.anchorPos = 0
	e.anchorAt = e.clock.Now()
}

// Seek moves the position. Seeks issued before metadata has loaded are
// dropped, as a real media element would.
func (e *LocalElement) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.loaded {
		return
	}
	e.anchorPos = clampPosition(seconds, e.duration)
	e.anchorAt = e.clock.Now()
}

func (e *LocalElement) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
}

func (e *LocalElement) Ready() <-chan struct{} { return e.ready }

// Advance stops the element when it runs past a known duration. Position
// itself is derived from the clock.
func (e *LocalElement) Advance(time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing || e.duration <= 0 {
		return
	}
	if pos := e.positionLocked(); pos >= e.duration {
		e.anchorPos = e.duration
		e.anchorAt = e.clock.Now()
		e.playing = false
	}
}

func (e *LocalElement) Close() {
	e.mu.Lock()
	e.closed = true
	e.playing = false
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *LocalElement) positionLocked() float64 {
	pos := e.anchorPos
	if e.playing {
		pos += e.clock.Now().Sub(e.anchorAt).Seconds()
	}
	return clampPosition(pos, e.duration)
}
