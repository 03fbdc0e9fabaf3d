package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"overlaycast/internal/channel"
	"overlaycast/internal/clock"
	"overlaycast/internal/config"
	"overlaycast/internal/logging"
	"overlaycast/internal/media"
	"overlaycast/internal/metrics"
	"overlaycast/internal/playback"
	"overlaycast/internal/protocol"
	"overlaycast/internal/transition"
)

// ErrUnknownOverlay is returned for names or channels with no overlay.
var ErrUnknownOverlay = errors.New("unknown overlay")

// Deps are the shared collaborators handed to every machine.
type Deps struct {
	Clock       clock.Clock
	ImageProber media.Prober
	VideoProber media.Prober
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Manager owns every configured overlay.
type Manager struct {
	mu        sync.RWMutex
	machines  map[string]*Machine
	byChannel map[string]*Machine
	order     []string
	leases    *playback.Leases
	logger    *slog.Logger
}

// NewManager builds one machine per configured overlay.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	base := deps.Logger
	if base == nil {
		base = logging.NewNop()
	}
	mgr := &Manager{
		machines:  make(map[string]*Machine),
		byChannel: make(map[string]*Machine),
		leases:    playback.NewLeases(),
		logger:    logging.NewComponentLogger(base, "overlay"),
	}
	timing := transition.Timing{
		Logo:      config.Millis(cfg.Transition.LogoDelayMS),
		Flip:      config.Millis(cfg.Transition.FlipDelayMS),
		Bar:       config.Millis(cfg.Transition.BarDelayMS),
		BarNoFlip: config.Millis(cfg.Transition.BarDelayNoFlipMS),
		Text:      config.Millis(cfg.Transition.TextDelayMS),
	}
	for _, oc := range cfg.Overlays {
		logger := mgr.logger
		if lvl, ok := cfg.Logging.ChannelOverride[oc.Channel]; ok {
			logger = logging.WithLevelOverride(logger, logging.ParseLevel(lvl))
		}
		name := oc.Name
		queue := playback.NewCommandQueue(cfg.Player.CommandBuffer, func(protocol.PlayerCommand) {
			deps.Metrics.PlayerCommandDropped(name)
		})
		machine := NewMachine(Options{
			Name:            oc.Name,
			Channel:         oc.Channel,
			Kind:            oc.Kind,
			Clock:           deps.Clock,
			CrossfadeWindow: cfg.CrossfadeWindow(),
			HideWindow:      cfg.HideWindow(),
			StateTick:       cfg.StateTick(),
			SeekRetries:     cfg.SeekRetries(),
			Transition:      timing,
			ImageProber:     deps.ImageProber,
			VideoProber:     deps.VideoProber,
			ProbeTimeout:    cfg.ProbeTimeout(),
			Leases:          mgr.leases,
			PlayerQueue:     queue,
			Metrics:         deps.Metrics,
			Logger:          logger,
		})
		mgr.machines[oc.Name] = machine
		mgr.byChannel[oc.Channel] = machine
		mgr.order = append(mgr.order, oc.Name)
	}
	return mgr
}

// Bind subscribes every overlay's channel on client and routes its frames
// to the owning machine. State reports go back out on the same channel.
func (m *Manager) Bind(client *channel.Client) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		machine := m.machines[name]
		ch := client.Connect(machine.Channel())
		ch.OnMessage(machine.Handle)
		machine.SetReporter(ch)
	}
}

// Names lists overlays in configuration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Machine looks an overlay up by name.
func (m *Manager) Machine(name string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[name]
	return machine, ok
}

// ByChannel looks an overlay up by channel.
func (m *Manager) ByChannel(channelName string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.byChannel[channelName]
	return machine, ok
}

// Resolve finds an overlay by name first and then by channel.
func (m *Manager) Resolve(ref string) (*Machine, error) {
	ref = strings.TrimSpace(ref)
	if machine, ok := m.Machine(ref); ok {
		return machine, nil
	}
	if machine, ok := m.ByChannel(ref); ok {
		return machine, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOverlay, ref)
}

// Handle routes env to the overlay subscribed to env.Channel.
func (m *Manager) Handle(ctx context.Context, env protocol.Envelope) error {
	machine, ok := m.ByChannel(env.Channel)
	if !ok {
		return fmt.Errorf("%w: channel %q", ErrUnknownOverlay, env.Channel)
	}
	return machine.Handle(ctx, env)
}

// Snapshots returns every overlay's state in configuration order.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	machines := make([]*Machine, 0, len(m.order))
	for _, name := range m.order {
		machines = append(machines, m.machines[name])
	}
	m.mu.RUnlock()
	out := make([]Snapshot, 0, len(machines))
	for _, machine := range machines {
		out = append(out, machine.Snapshot())
	}
	return out
}

// VisibleCount reports how many overlays are not hidden.
func (m *Manager) VisibleCount() int {
	count := 0
	for _, snap := range m.Snapshots() {
		if snap.Visible {
			count++
		}
	}
	return count
}

// Channels lists subscribed channels, sorted.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byChannel))
	for name := range m.byChannel {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close closes every machine.
func (m *Manager) Close() {
	m.mu.RLock()
	machines := make([]*Machine, 0, len(m.machines))
	for _, machine := range m.machines {
		machines = append(machines, machine)
	}
	m.mu.RUnlock()
	for _, machine := range machines {
		machine.Close()
	}
}
