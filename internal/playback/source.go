package playback

import (
	"errors"
	"math"
	"time"

	"overlaycast/internal/protocol"
)

// ErrClosed is returned by controller operations after Close or revocation.
var ErrClosed = errors.New("playback controller closed")

// Source is a controllable media element.
type Source interface {
	State() protocol.PlaybackState
	Play()
	Pause()
	Stop()
	Seek(seconds float64)
	SetMuted(muted bool)
	// Ready is closed once the source has metadata.
	Ready() <-chan struct{}
	// Advance moves a shadowed position forward by dt while playing.
	Advance(dt time.Duration)
	Close()
}

func clampPosition(t, duration float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if duration > 0 && t > duration {
		return duration
	}
	return t
}
