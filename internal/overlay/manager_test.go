package overlay_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"overlaycast/internal/channel"
	"overlaycast/internal/clock"
	"overlaycast/internal/config"
	"overlaycast/internal/overlay"
	"overlaycast/internal/protocol"
)

func newManager(t *testing.T) (*overlay.Manager, *clock.Fake) {
	t.Helper()
	cfg := config.Default()
	fake := clock.NewFake(epoch)
	mgr := overlay.NewManager(&cfg, overlay.Deps{Clock: fake})
	t.Cleanup(mgr.Close)
	return mgr, fake
}

func TestManagerBuildsConfiguredOverlays(t *testing.T) {
	mgr, _ := newManager(t)

	want := []string{"lower-third", "countdown", "poster", "chat"}
	if got := mgr.Names(); !slices.Equal(got, want) {
		t.Fatalf("unexpected names: %v", got)
	}
	if got := mgr.Channels(); !slices.Contains(got, "chat-highlight") || len(got) != 4 {
		t.Fatalf("unexpected channels: %v", got)
	}
	snaps := mgr.Snapshots()
	if len(snaps) != 4 || snaps[0].Overlay != "lower-third" || snaps[3].Kind != overlay.KindChat {
		t.Fatalf("unexpected snapshots: %+v", snaps)
	}
}

func TestManagerResolve(t *testing.T) {
	mgr, _ := newManager(t)

	byName, err := mgr.Resolve("chat")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	byChannel, err := mgr.Resolve("chat-highlight")
	if err != nil {
		t.Fatalf("resolve by channel: %v", err)
	}
	if byName != byChannel {
		t.Fatal("name and channel should resolve to the same machine")
	}
	if _, err := mgr.Resolve("ticker"); !errors.Is(err, overlay.ErrUnknownOverlay) {
		t.Fatalf("expected ErrUnknownOverlay, got %v", err)
	}
}

func TestManagerRoutesByChannel(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	show := protocol.Envelope{Type: protocol.TypeShow, Channel: "chat-highlight", ID: "m1", Payload: []byte(`{"text":"hello","author":"viewer"}`)}
	if err := mgr.Handle(ctx, show); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	chat, _ := mgr.Machine("chat")
	if snap := chat.Snapshot(); snap.Current == nil || snap.Current.ID != "m1" {
		t.Fatalf("chat overlay did not receive the show: %+v", snap)
	}
	poster, _ := mgr.Machine("poster")
	if poster.Snapshot().Visible {
		t.Fatal("show leaked into another overlay")
	}
	if got := mgr.VisibleCount(); got != 1 {
		t.Fatalf("expected one visible overlay, got %d", got)
	}

	unknown := protocol.Envelope{Type: protocol.TypeShow, Channel: "nowhere"}
	if err := mgr.Handle(ctx, unknown); !errors.Is(err, overlay.ErrUnknownOverlay) {
		t.Fatalf("expected ErrUnknownOverlay, got %v", err)
	}
}

func TestManagerBindRoutesInjectedEvents(t *testing.T) {
	mgr, _ := newManager(t)
	client := channel.New(channel.Options{
		URL:            "ws://127.0.0.1:1/ws",
		ReconnectDelay: time.Hour,
	}, nil)
	t.Cleanup(func() { _ = client.Close() })
	mgr.Bind(client)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	show := protocol.Envelope{Type: protocol.TypeShow, Channel: "poster", ID: "p1", Payload: []byte(`{"title":"Tonight"}`)}
	if err := client.Inject(context.Background(), show); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	poster, _ := mgr.Machine("poster")
	if snap := poster.Snapshot(); snap.Current == nil || snap.Current.Payload["title"] != "Tonight" {
		t.Fatalf("bound overlay did not receive the event: %+v", snap)
	}

	bad := protocol.Envelope{Type: protocol.TypeUpdate, Channel: "countdown", ID: "c1"}
	if err := client.Inject(context.Background(), bad); !errors.Is(err, protocol.ErrNotVisible) {
		t.Fatalf("expected handler error to surface, got %v", err)
	}
}
