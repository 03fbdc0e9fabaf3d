package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	_ "golang.org/x/image/webp"
)

// headerReadLimit bounds how much of a remote image is read for its header.
const headerReadLimit = 1 << 20

// ImageHeader decodes only the header of PNG, JPEG, GIF and WebP images,
// which is enough to learn their dimensions without ffprobe.
type ImageHeader struct {
	Client *http.Client
}

// Probe implements Prober for local paths, file:// and http(s) URLs.
func (p ImageHeader) Probe(ctx context.Context, src string) (Info, error) {
	rc, err := p.open(ctx, strings.TrimSpace(src))
	if err != nil {
		return Info{}, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(io.LimitReader(rc, headerReadLimit))
	if err != nil {
		return Info{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, ErrUnknownDimensions
	}
	return Info{Width: cfg.Width, Height: cfg.Height}, nil
}

func (p ImageHeader) open(ctx context.Context, src string) (io.ReadCloser, error) {
	parsed, err := url.Parse(src)
	if err != nil || parsed.Scheme == "" || parsed.Scheme == "file" {
		path := src
		if err == nil && parsed.Scheme == "file" {
			path = parsed.Path
		}
		return os.Open(path)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("image header: unsupported scheme %q", parsed.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}
