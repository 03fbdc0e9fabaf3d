// Package media probes media sources for the metadata the overlay engine
// needs before it can lay an item out: intrinsic dimensions and duration.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"overlaycast/internal/media/ffprobe"
	"overlaycast/internal/services"
)

// DefaultAspectRatio is used when a probe fails.
const DefaultAspectRatio = 1.0

// ErrUnknownDimensions reports a probe that succeeded but found no picture.
var ErrUnknownDimensions = errors.New("media dimensions unknown")

// Info is what a probe learned about a source.
type Info struct {
	Width    int
	Height   int
	Aspect   float64
	Duration float64
}

// AspectRatio returns width/height, the probed display aspect, or
// DefaultAspectRatio when neither is known.
func (i Info) AspectRatio() float64 {
	if i.Aspect > 0 {
		return i.Aspect
	}
	if i.Width > 0 && i.Height > 0 {
		return float64(i.Width) / float64(i.Height)
	}
	return DefaultAspectRatio
}

// Prober inspects a source.
type Prober interface {
	Probe(ctx context.Context, src string) (Info, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, src string) (Info, error)

func (f ProberFunc) Probe(ctx context.Context, src string) (Info, error) {
	return f(ctx, src)
}

// FFprobe probes any source ffprobe can open, local or remote.
type FFprobe struct {
	Binary  string
	Timeout time.Duration
}

// Probe runs ffprobe against src.
func (p FFprobe) Probe(ctx context.Context, src string) (Info, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	result, err := ffprobe.Inspect(ctx, p.Binary, src)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Info{}, services.Wrap(services.ErrTimeout, "media", "ffprobe", "probe timed out", err)
		}
		return Info{}, services.Wrap(services.ErrExternalTool, "media", "ffprobe", "probe failed", err)
	}
	info := Info{Duration: result.DurationSeconds(), Aspect: result.AspectRatio()}
	if stream, ok := result.VideoStream(); ok {
		info.Width, info.Height = stream.Width, stream.Height
	}
	return info, nil
}

// Chain tries each prober in order and returns the first result with
// dimensions or a duration.
type Chain []Prober

// Probe implements Prober.
func (c Chain) Probe(ctx context.Context, src string) (Info, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		info, err := p.Probe(ctx, src)
		if err == nil && (info.Width > 0 || info.Aspect > 0 || info.Duration > 0) {
			return info, nil
		}
		if err == nil {
			err = ErrUnknownDimensions
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Info{}, fmt.Errorf("probe %s: no prober configured", strings.TrimSpace(src))
	}
	return Info{}, fmt.Errorf("probe %s: %w", strings.TrimSpace(src), errors.Join(errs...))
}
