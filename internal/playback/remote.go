package playback

import (
	"sync"
	"time"

	"overlaycast/internal/protocol"
)

// RemotePlayer shadows an embedded player in the renderer.
type RemotePlayer struct {
	mu      sync.Mutex
	id      string
	videoID string
	queue   *CommandQueue
	state   protocol.PlaybackState
	isReady bool
	closed  bool
	ready   chan struct{}
}

// NewRemotePlayer binds a shadow for videoID to the player identified by id.
func NewRemotePlayer(id, videoID string, queue *CommandQueue, muted bool) *RemotePlayer {
	return &RemotePlayer{
		id:      id,
		videoID: videoID,
		queue:   queue,
		state:   protocol.PlaybackState{IsMuted: muted},
		ready:   make(chan struct{}),
	}
}

// ID returns the player id used for the listen subscription.
func (p *RemotePlayer) ID() string { return p.id }

// VideoID returns the video the player is expected to load.
func (p *RemotePlayer) VideoID() string { return p.videoID }

// IsReady reports whether onReady has been received.
func (p *RemotePlayer) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isReady
}

func (p *RemotePlayer) State() protocol.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *RemotePlayer) Play() {
	p.command(protocol.FuncPlay, func(s *protocol.PlaybackState) { s.IsPlaying = true })
}

func (p *RemotePlayer) Pause() {
	p.command(protocol.FuncPause, func(s *protocol.PlaybackState) { s.IsPlaying = false })
}

func (p *RemotePlayer) Stop() {
	p.command(protocol.FuncStop, func(s *protocol.PlaybackState) {
		s.IsPlaying = false
		s.CurrentTime = 0
	})
}

func (p *RemotePlayer) Seek(seconds float64) {
	p.command(protocol.FuncSeekTo, func(s *protocol.PlaybackState) {
		s.CurrentTime = clampPosition(seconds, s.Duration)
	}, seconds, true)
}

func (p *RemotePlayer) SetMuted(muted bool) {
	fn := protocol.FuncUnmute
	if muted {
		fn = protocol.FuncMute
	}
	p.command(fn, func(s *protocol.PlaybackState) { s.IsMuted = muted })
}

func (p *RemotePlayer) Ready() <-chan struct{} { return p.ready }

// Advance adds elapsed time to the shadow position while playing.
func (p *RemotePlayer) Advance(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.IsPlaying || dt <= 0 {
		return
	}
	p.state.CurrentTime = clampPosition(p.state.CurrentTime+dt.Seconds(), p.state.Duration)
}

func (p *RemotePlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// HandleEvent applies a notification from the player. It reports whether the
// event was the first onReady.
func (p *RemotePlayer) HandleEvent(evt protocol.PlayerEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	switch evt.Event {
	case protocol.PlayerEventReady:
		if p.isReady {
			return false
		}
		p.isReady = true
		p.push(protocol.NewPlayerListen(p.id))
		close(p.ready)
		return true
	case protocol.PlayerEventInfoDelivery:
		if evt.Info == nil {
			return false
		}
		info := evt.Info
		if info.CurrentTime != nil {
			p.state.CurrentTime = *info.CurrentTime
		}
		if info.Duration != nil {
			p.state.Duration = *info.Duration
		}
		if info.PlayerState != nil {
			p.state.IsPlaying = *info.PlayerState == protocol.PlayerPlaying
		}
		if info.Muted != nil {
			p.state.IsMuted = *info.Muted
		}
	}
	return false
}

func (p *RemotePlayer) command(fn string, apply func(*protocol.PlaybackState), args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	apply(&p.state)
	p.push(protocol.NewPlayerCommand(fn, args...))
}

func (p *RemotePlayer) push(cmd protocol.PlayerCommand) {
	if p.queue != nil {
		p.queue.Push(cmd)
	}
}
