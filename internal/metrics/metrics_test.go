package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"overlaycast/internal/metrics"
)

func TestCollectorsRecord(t *testing.T) {
	m := metrics.New()
	m.SetConnected(true)
	m.Reconnect()
	m.Reconnect()
	m.FrameReceived("show")
	m.FrameDropped("malformed")
	m.Ack(true)
	m.Ack(false)
	m.Ack(false)
	m.AckDropped()
	m.ObserveHandle("show", 2*time.Millisecond)
	m.PlayerCommandDropped("chat")
	m.SetVisible("poster", true)
	m.Probe(false)

	expected := `
# HELP overlaycast_acks_total Acknowledgments by outcome
# TYPE overlaycast_acks_total counter
overlaycast_acks_total{success="false"} 2
overlaycast_acks_total{success="true"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "overlaycast_acks_total"); err != nil {
		t.Fatalf("unexpected acks: %v", err)
	}
	count, err := testutil.GatherAndCount(m.Registry(), "overlaycast_director_reconnects_total", "overlaycast_overlay_visible")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 series, got %d", count)
	}
	dropped := `
# HELP overlaycast_acks_dropped_total Acknowledgments evicted from the offline queue before delivery
# TYPE overlaycast_acks_dropped_total counter
overlaycast_acks_dropped_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(dropped), "overlaycast_acks_dropped_total"); err != nil {
		t.Fatalf("unexpected dropped acks: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := metrics.New()
	m.FrameReceived("hide")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `overlaycast_frames_received_total{type="hide"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.SetConnected(true)
	m.Reconnect()
	m.Ack(true)
	m.AckDropped()
	m.SetVisible("x", true)
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
