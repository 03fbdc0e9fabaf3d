package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"overlaycast/internal/api"
	"overlaycast/internal/config"
	"overlaycast/internal/journal"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/overlay"
	"overlaycast/internal/protocol"
	"overlaycast/internal/testsupport"
)

func newTestAPI(t *testing.T, cfg *config.Config, j *journal.Journal) (*Daemon, http.Handler) {
	t.Helper()
	d, err := New(cfg, logging.NewNop(), Options{
		Manager: overlay.NewManager(cfg, overlay.Deps{}),
		Journal: j,
		Metrics: metrics.New(),
		LogHub:  logging.NewStreamHub(32),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	srv := &apiServer{daemon: d, logger: logging.NewNop()}
	return d, srv.routes(cfg.Paths.APIToken, true)
}

func serve(h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIServerOverlays(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, h := newTestAPI(t, cfg, nil)

	w := serve(h, http.MethodGet, "/api/overlays", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.OverlayListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Overlays) != 4 || list.Overlays[0].Name != "lower-third" {
		t.Fatalf("unexpected overlays: %+v", list.Overlays)
	}

	if _, err := d.Send(context.Background(), "poster", protocol.TypeShow, "p1", json.RawMessage(`{"title":"Tonight"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	w = serve(h, http.MethodGet, "/api/overlays/poster", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var one api.OverlayResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !one.Overlay.Visible || one.Overlay.Current == nil || one.Overlay.Current.Payload["title"] != "Tonight" {
		t.Fatalf("unexpected overlay: %+v", one.Overlay)
	}

	w = serve(h, http.MethodGet, "/api/overlays/ticker", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown overlay, got %d", w.Code)
	}
	w = serve(h, http.MethodDelete, "/api/overlays", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIServerStatusAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, h := newTestAPI(t, cfg, nil)

	w := serve(h, http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Running || status.Director.State != "idle" || len(status.Overlays) != 4 {
		t.Fatalf("unexpected status: %+v", status)
	}

	w = serve(h, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}

	w = serve(h, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "overlaycast_") {
		t.Fatalf("expected metrics exposition, got %d", w.Code)
	}
}

func TestAPIServerPlayerEventErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, h := newTestAPI(t, cfg, nil)

	w := serve(h, http.MethodPost, "/api/overlays/poster/player", `{"event":"onReady"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without media, got %d", w.Code)
	}
	w = serve(h, http.MethodPost, "/api/overlays/poster/player", `{"event":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestAPIServerAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	_, h := newTestAPI(t, cfg, nil)

	tests := []struct {
		name   string
		target string
		header http.Header
		want   int
	}{
		{name: "missing", target: "/api/health", want: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/api/health", header: http.Header{"Authorization": {"Basic secret"}}, want: http.StatusUnauthorized},
		{name: "wrong token", target: "/api/health", header: http.Header{"Authorization": {"Bearer nope"}}, want: http.StatusUnauthorized},
		{name: "bearer", target: "/api/health", header: http.Header{"Authorization": {"Bearer secret"}}, want: http.StatusOK},
		{name: "query token", target: "/api/health?token=secret", want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(h, http.MethodGet, tc.target, "", tc.header)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestAPIServerJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournal())
	j := testsupport.MustOpenJournal(t, cfg)
	_, h := newTestAPI(t, cfg, j)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, e := range []journal.Entry{
		{Channel: "poster", EventID: "a", Type: "show", Source: "director", Success: true, At: at},
		{Channel: "poster", EventID: "b", Type: "update", Source: "director", Error: "overlay not visible", At: at.Add(time.Second)},
		{Channel: "countdown", EventID: "c", Type: "show", Source: "local", Success: true, At: at.Add(2 * time.Second)},
	} {
		if _, err := j.Record(context.Background(), e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	w := serve(h, http.MethodGet, "/api/journal?channel=poster&failed=1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.JournalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode journal: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].EventID != "b" {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
	if len(resp.Stats) != 2 {
		t.Fatalf("expected stats for 2 channels, got %+v", resp.Stats)
	}

	w = serve(h, http.MethodGet, "/api/journal?limit=abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestAPIServerLogsTail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, h := newTestAPI(t, cfg, nil)
	hub := d.LogStream()
	hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "INFO", Message: "connected", Component: "channel"})
	hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "WARN", Message: "show failed", Component: "overlay", Channel: "poster"})

	w := serve(h, http.MethodGet, "/api/logs?tail=1&limit=10&component=overlay", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.LogStreamResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode logs: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Message != "show failed" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
	if resp.Next == 0 {
		t.Fatal("expected a cursor")
	}
}

func TestAPIServerOverlayEventStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, h := newTestAPI(t, cfg, nil)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/overlays/poster/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() api.OverlayState {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var state api.OverlayState
				if err := json.Unmarshal([]byte(data), &state); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return state
			}
		}
	}

	first := next()
	if first.Name != "poster" || first.Visible {
		t.Fatalf("unexpected initial state: %+v", first)
	}
	if _, err := d.Send(ctx, "poster", protocol.TypeShow, "s1", json.RawMessage(`{"title":"Live"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	second := next()
	if !second.Visible || second.Current == nil || second.Current.ID != "s1" {
		t.Fatalf("unexpected streamed state: %+v", second)
	}
}
