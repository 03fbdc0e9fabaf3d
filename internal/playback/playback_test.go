package playback_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"overlaycast/internal/clock"
	"overlaycast/internal/media"
	"overlaycast/internal/playback"
	"overlaycast/internal/protocol"
)

var epoch = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type recordingReporter struct {
	mu      sync.Mutex
	reports []protocol.StateReport
}

func (r *recordingReporter) ReportState(_ context.Context, report protocol.StateReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingReporter) all() []protocol.StateReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.StateReport(nil), r.reports...)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func ptr[T any](v T) *T { return &v }

func TestLocalElementIgnoresSeekBeforeMetadata(t *testing.T) {
	fake := clock.NewFake(epoch)
	release := make(chan struct{})
	prober := media.ProberFunc(func(ctx context.Context, src string) (media.Info, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return media.Info{}, ctx.Err()
		}
		return media.Info{Duration: 90}, nil
	})

	el := playback.NewLocalElement(context.Background(), "clip.mp4", prober, fake, false, nil)
	t.Cleanup(el.Close)

	el.Seek(30)
	if got := el.State().CurrentTime; got != 0 {
		t.Fatalf("seek before metadata should be ignored, position=%v", got)
	}

	close(release)
	select {
	case <-el.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("element never became ready")
	}

	el.Seek(30)
	el.Play()
	fake.Advance(2500 * time.Millisecond)
	state := el.State()
	if !near(state.CurrentTime, 32.5) || state.Duration != 90 || !state.IsPlaying {
		t.Fatalf("unexpected state: %+v", state)
	}

	el.Pause()
	fake.Advance(time.Second)
	if got := el.State().CurrentTime; !near(got, 32.5) {
		t.Fatalf("paused element moved: %v", got)
	}
}

func TestLocalElementStopsAtDuration(t *testing.T) {
	fake := clock.NewFake(epoch)
	prober := media.ProberFunc(func(context.Context, string) (media.Info, error) {
		return media.Info{Duration: 5}, nil
	})
	el := playback.NewLocalElement(context.Background(), "short.mp4", prober, fake, true, nil)
	t.Cleanup(el.Close)
	<-el.Ready()

	el.Play()
	fake.Advance(7 * time.Second)
	el.Advance(time.Second)
	state := el.State()
	if state.CurrentTime != 5 || state.IsPlaying || !state.IsMuted {
		t.Fatalf("unexpected state at end: %+v", state)
	}
}

func TestRemotePlayerShadowAndCommands(t *testing.T) {
	queue := playback.NewCommandQueue(8, nil)
	player := playback.NewRemotePlayer("lower-third", "dQw4w9WgXcQ", queue, false)

	player.Play()
	player.Seek(42)
	player.SetMuted(true)

	state := player.State()
	if !state.IsPlaying || state.CurrentTime != 42 || !state.IsMuted {
		t.Fatalf("shadow not updated optimistically: %+v", state)
	}

	cmds := queue.Drain()
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	if cmds[0].Func != protocol.FuncPlay || cmds[1].Func != protocol.FuncSeekTo || cmds[2].Func != protocol.FuncMute {
		t.Fatalf("unexpected command order: %+v", cmds)
	}
	if len(cmds[1].Args) != 2 || cmds[1].Args[0] != 42.0 || cmds[1].Args[1] != true {
		t.Fatalf("unexpected seek args: %+v", cmds[1].Args)
	}

	player.Advance(1500 * time.Millisecond)
	if got := player.State().CurrentTime; !near(got, 43.5) {
		t.Fatalf("expected shadow advance, got %v", got)
	}

	if !player.HandleEvent(protocol.PlayerEvent{Event: protocol.PlayerEventReady}) {
		t.Fatal("first onReady should report readiness")
	}
	if player.HandleEvent(protocol.PlayerEvent{Event: protocol.PlayerEventReady}) {
		t.Fatal("second onReady should be ignored")
	}
	select {
	case <-player.Ready():
	default:
		t.Fatal("ready channel not closed")
	}
	listen := queue.Drain()
	if len(listen) != 1 || listen[0].Event != protocol.PlayerEventListening || listen[0].ID != "lower-third" {
		t.Fatalf("expected one listen subscription, got %+v", listen)
	}

	player.HandleEvent(protocol.PlayerEvent{
		Event: protocol.PlayerEventInfoDelivery,
		Info: &protocol.PlayerInfo{
			CurrentTime: ptr(12.0),
			Duration:    ptr(200.0),
			PlayerState: ptr(protocol.PlayerPaused),
		},
	})
	state = player.State()
	if state.CurrentTime != 12 || state.Duration != 200 || state.IsPlaying || !state.IsMuted {
		t.Fatalf("infoDelivery not applied: %+v", state)
	}
}

func TestCommandQueueDropsOldest(t *testing.T) {
	var dropped []protocol.PlayerCommand
	queue := playback.NewCommandQueue(2, func(cmd protocol.PlayerCommand) {
		dropped = append(dropped, cmd)
	})
	queue.Push(protocol.NewPlayerCommand(protocol.FuncPlay))
	queue.Push(protocol.NewPlayerCommand(protocol.FuncPause))
	queue.Push(protocol.NewPlayerCommand(protocol.FuncSeekTo, 5.0, true))

	if queue.Dropped() != 1 || len(dropped) != 1 || dropped[0].Func != protocol.FuncPlay {
		t.Fatalf("expected oldest command dropped, got %d %+v", queue.Dropped(), dropped)
	}
	cmds := queue.Drain()
	if len(cmds) != 2 || cmds[0].Func != protocol.FuncPause || cmds[1].Func != protocol.FuncSeekTo {
		t.Fatalf("unexpected queue contents: %+v", cmds)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", queue.Len())
	}
}

func TestLeasesRevokePreviousOwner(t *testing.T) {
	leases := playback.NewLeases()
	var revoked []string
	first := leases.Acquire("player", func() { revoked = append(revoked, "first") })
	second := leases.Acquire("player", func() { revoked = append(revoked, "second") })

	if len(revoked) != 1 || revoked[0] != "first" {
		t.Fatalf("expected first owner revoked, got %v", revoked)
	}
	if first.Active() || !second.Active() {
		t.Fatal("unexpected lease ownership")
	}
	first.Release()
	if !second.Active() {
		t.Fatal("stale release must not drop the current owner")
	}
	second.Release()
	if leases.Len() != 0 {
		t.Fatalf("expected no owners, got %d", leases.Len())
	}
}

func TestControllerTicksAndReports(t *testing.T) {
	fake := clock.NewFake(epoch)
	reporter := &recordingReporter{}
	queue := playback.NewCommandQueue(16, nil)
	player := playback.NewRemotePlayer("countdown", "abc", queue, false)

	var ticks int
	ctrl := playback.NewController(player, playback.Options{
		Channel:  "countdown",
		Clock:    fake,
		Reporter: reporter,
		OnTick:   func(protocol.PlaybackState) { ticks++ },
	})
	ctrl.Start(true)
	t.Cleanup(ctrl.Close)

	fake.Advance(3 * time.Second)
	reports := reporter.all()
	if len(reports) != 3 || ticks != 3 {
		t.Fatalf("expected 3 reports and ticks, got %d and %d", len(reports), ticks)
	}
	last := reports[2]
	if last.Type != protocol.TypeState || last.Channel != "countdown" {
		t.Fatalf("unexpected report envelope: %+v", last)
	}
	if !near(last.Payload.CurrentTime, 3) || !last.Payload.IsPlaying {
		t.Fatalf("unexpected reported state: %+v", last.Payload)
	}

	ctrl.Close()
	fake.Advance(5 * time.Second)
	if got := len(reporter.all()); got != 3 {
		t.Fatalf("closed controller kept reporting: %d", got)
	}
	if err := ctrl.Play(); !errors.Is(err, playback.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	cmds := queue.Drain()
	if cmds[len(cmds)-1].Func != protocol.FuncStop {
		t.Fatalf("expected stop on close, got %+v", cmds[len(cmds)-1])
	}
}

func TestControllerSubClipLoops(t *testing.T) {
	fake := clock.NewFake(epoch)
	reporter := &recordingReporter{}
	el := playback.NewLocalElement(context.Background(), "clip.mp4", nil, fake, false, nil)
	ctrl := playback.NewController(el, playback.Options{
		Channel:  "poster",
		Clock:    fake,
		Reporter: reporter,
		SubClip:  &protocol.SubClipConfig{StartTime: 10, EndTime: ptr(12.0), EndBehavior: protocol.EndLoop},
	})
	ctrl.Start(true)
	t.Cleanup(ctrl.Close)

	fake.Advance(3 * time.Second)
	reports := reporter.all()
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	want := []float64{11, 10, 11}
	for i, w := range want {
		if !near(reports[i].Payload.CurrentTime, w) {
			t.Fatalf("report %d: got %v want %v", i, reports[i].Payload.CurrentTime, w)
		}
	}
	if !reports[2].Payload.IsPlaying {
		t.Fatal("looping clip should keep playing")
	}
}

func TestControllerSubClipStopHoldsAfterPlay(t *testing.T) {
	fake := clock.NewFake(epoch)
	el := playback.NewLocalElement(context.Background(), "clip.mp4", nil, fake, false, nil)
	ctrl := playback.NewController(el, playback.Options{
		Clock:   fake,
		SubClip: &protocol.SubClipConfig{StartTime: 10, EndTime: ptr(12.0), EndBehavior: protocol.EndStop},
	})
	ctrl.Start(true)
	t.Cleanup(ctrl.Close)

	fake.Advance(3 * time.Second)
	if ctrl.State().IsPlaying {
		t.Fatal("expected the window end to pause playback")
	}
	if err := ctrl.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	fake.Advance(10 * time.Second)
	state := ctrl.State()
	if state.IsPlaying || state.CurrentTime > 13.5 {
		t.Fatalf("playback escaped the window after play: %+v", state)
	}
}

func TestControllerSubClipStops(t *testing.T) {
	fake := clock.NewFake(epoch)
	el := playback.NewLocalElement(context.Background(), "clip.mp4", nil, fake, false, nil)
	ctrl := playback.NewController(el, playback.Options{
		Clock:   fake,
		SubClip: &protocol.SubClipConfig{StartTime: 10, EndTime: ptr(12.0), EndBehavior: protocol.EndStop},
	})
	ctrl.Start(true)
	t.Cleanup(ctrl.Close)

	fake.Advance(3 * time.Second)
	state := ctrl.State()
	if state.IsPlaying {
		t.Fatalf("expected pause at end of window: %+v", state)
	}
	if !near(state.CurrentTime, 12) {
		t.Fatalf("stop must leave position untouched, got %v", state.CurrentTime)
	}
}

func TestControllerChapterNavigation(t *testing.T) {
	fake := clock.NewFake(epoch)
	el := playback.NewLocalElement(context.Background(), "talk.mp4", nil, fake, false, nil)
	ctrl := playback.NewController(el, playback.Options{
		Clock: fake,
		Chapters: []protocol.Chapter{
			{ID: "outro", StartTime: 180, Label: "Outro"},
			{ID: "intro", StartTime: 0, Label: "Intro"},
			{ID: "demo", StartTime: 120, Label: "Demo"},
		},
	})
	ctrl.Start(false)
	t.Cleanup(ctrl.Close)

	if err := ctrl.Seek(125); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	ch, err := ctrl.PreviousChapter()
	if err != nil || ch.ID != "demo" {
		t.Fatalf("expected previous=demo, got %+v err=%v", ch, err)
	}
	if err := ctrl.Seek(125); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	ch, err = ctrl.NextChapter()
	if err != nil || ch.ID != "outro" || ctrl.State().CurrentTime != 180 {
		t.Fatalf("expected next=outro at 180, got %+v err=%v", ch, err)
	}
	if _, err := ctrl.NextChapter(); !errors.Is(err, protocol.ErrNoChapter) {
		t.Fatalf("expected ErrNoChapter past the last chapter, got %v", err)
	}
	ch, err = ctrl.JumpChapter("0")
	if err != nil || ch.ID != "intro" {
		t.Fatalf("expected jump to index 0, got %+v err=%v", ch, err)
	}
	if cur, ok := ctrl.CurrentChapter(); !ok || cur.ID != "intro" {
		t.Fatalf("unexpected current chapter: %+v", cur)
	}
	if err := ctrl.Seek(-1); !errors.Is(err, protocol.ErrInvalidPayload) {
		t.Fatalf("expected invalid seek, got %v", err)
	}
	if err := ctrl.HandlePlayerEvent(protocol.PlayerEvent{Event: protocol.PlayerEventReady}); !errors.Is(err, protocol.ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia for local element, got %v", err)
	}
}

func TestControllerLeaseTakeover(t *testing.T) {
	fake := clock.NewFake(epoch)
	leases := playback.NewLeases()
	queue := playback.NewCommandQueue(16, nil)

	oldPlayer := playback.NewRemotePlayer("chat", "old", queue, false)
	oldCtrl := playback.NewController(oldPlayer, playback.Options{Clock: fake, Leases: leases, LeaseKey: "chat"})
	oldCtrl.Start(true)

	newPlayer := playback.NewRemotePlayer("chat", "new", queue, false)
	newCtrl := playback.NewController(newPlayer, playback.Options{Clock: fake, Leases: leases, LeaseKey: "chat"})
	newCtrl.Start(true)
	t.Cleanup(newCtrl.Close)

	if !oldCtrl.Revoked() || newCtrl.Revoked() {
		t.Fatal("expected the older controller to be revoked")
	}
	queue.Drain()
	oldPlayer.Pause()
	oldCtrl.Close()
	if cmds := queue.Drain(); len(cmds) != 0 {
		t.Fatalf("revoked player must not push commands, got %+v", cmds)
	}
	if err := newCtrl.HandlePlayerEvent(protocol.PlayerEvent{Event: protocol.PlayerEventReady}); err != nil {
		t.Fatalf("HandlePlayerEvent failed: %v", err)
	}
	if !newPlayer.IsReady() {
		t.Fatal("new player should be ready")
	}
	if leases.Len() != 1 {
		t.Fatalf("expected one owner, got %d", leases.Len())
	}
}
