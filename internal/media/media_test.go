package media_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"overlaycast/internal/media"
	"overlaycast/internal/services"
	"overlaycast/internal/testsupport"
)

func TestImageHeaderLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poster.png")
	testsupport.WriteFile(t, path, testsupport.PNG(t, 400, 600))
	info, err := media.ImageHeader{}.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Width != 400 || info.Height != 600 {
		t.Fatalf("unexpected dimensions: %+v", info)
	}
	if got := info.AspectRatio(); math.Abs(got-400.0/600.0) > 1e-9 {
		t.Fatalf("unexpected aspect: %v", got)
	}
}

func TestImageHeaderHTTP(t *testing.T) {
	body := testsupport.PNG(t, 1280, 720)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	prober := media.ImageHeader{Client: srv.Client()}
	info, err := prober.Probe(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Width != 1280 || info.Height != 720 {
		t.Fatalf("unexpected dimensions: %+v", info)
	}
	if _, err := prober.Probe(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestChainFallsThrough(t *testing.T) {
	failing := media.ProberFunc(func(context.Context, string) (media.Info, error) {
		return media.Info{}, errors.New("boom")
	})
	empty := media.ProberFunc(func(context.Context, string) (media.Info, error) {
		return media.Info{}, nil
	})
	working := media.ProberFunc(func(context.Context, string) (media.Info, error) {
		return media.Info{Duration: 42}, nil
	})

	info, err := media.Chain{failing, empty, working}.Probe(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if info.Duration != 42 {
		t.Fatalf("unexpected info: %+v", info)
	}

	_, err = media.Chain{failing, empty}.Probe(context.Background(), "clip.mp4")
	if !errors.Is(err, media.ErrUnknownDimensions) {
		t.Fatalf("expected joined ErrUnknownDimensions, got %v", err)
	}
}

func TestInfoAspectRatioDefaults(t *testing.T) {
	if got := (media.Info{}).AspectRatio(); got != media.DefaultAspectRatio {
		t.Fatalf("expected default aspect, got %v", got)
	}
	if got := (media.Info{Width: 100, Height: 50, Aspect: 1.5}).AspectRatio(); got != 1.5 {
		t.Fatalf("expected probed aspect to win, got %v", got)
	}
}

func TestFFprobeMissingBinary(t *testing.T) {
	p := media.FFprobe{Binary: filepath.Join(t.TempDir(), "no-ffprobe")}
	if _, err := p.Probe(context.Background(), "clip.mp4"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestFFprobeReadsStubOutput(t *testing.T) {
	testsupport.StubBinary(t, "ffprobe", `cat <<'JSON'
{"streams":[{"index":0,"codec_type":"video","width":1920,"height":1080,"display_aspect_ratio":"16:9"}],
 "format":{"duration":"754.250000"}}
JSON`)

	info, err := media.FFprobe{}.Probe(context.Background(), "talk.mp4")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 || info.Duration != 754.25 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if math.Abs(info.AspectRatio()-16.0/9.0) > 1e-9 {
		t.Fatalf("unexpected aspect: %v", info.AspectRatio())
	}
}

func TestFFprobeFailureIsExternalToolError(t *testing.T) {
	testsupport.StubBinary(t, "ffprobe", "echo 'moov atom not found' >&2; exit 1")
	_, err := media.FFprobe{}.Probe(context.Background(), "broken.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}
