package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Transition kinds accepted on show.
const (
	TransitionFade      = "fade"
	TransitionSlide     = "slide"
	TransitionCrossfade = "crossfade"
	TransitionNone      = "none"
)

// MediaKind identifies the element a show attaches.
type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
	MediaYouTube MediaKind = "youtube"
)

// EndBehavior selects what a sub-clip does when it reaches its end.
type EndBehavior string

const (
	EndStop EndBehavior = "stop"
	EndLoop EndBehavior = "loop"
)

// PlaybackState is the shadow copy of one media source.
type PlaybackState struct {
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	IsPlaying   bool    `json:"isPlaying"`
	IsMuted     bool    `json:"isMuted"`
}

// Chapter marks a navigable position inside a media item.
type Chapter struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	Label     string  `json:"label"`
}

// SubClipConfig bounds playback to a window of the source.
type SubClipConfig struct {
	StartTime   float64     `json:"startTime"`
	EndTime     *float64    `json:"endTime,omitempty"`
	EndBehavior EndBehavior `json:"endBehavior,omitempty"`
}

// HasEnd reports whether the window is closed.
func (c SubClipConfig) HasEnd() bool {
	return c.EndTime != nil
}

// Normalize applies the default end behavior and validates the window.
func (c SubClipConfig) Normalize() (SubClipConfig, error) {
	if c.StartTime < 0 {
		return c, fmt.Errorf("%w: subClip.startTime must be >= 0", ErrInvalidPayload)
	}
	switch EndBehavior(strings.ToLower(string(c.EndBehavior))) {
	case "", EndStop:
		c.EndBehavior = EndStop
	case EndLoop:
		c.EndBehavior = EndLoop
	default:
		return c, fmt.Errorf("%w: subClip.endBehavior %q must be stop or loop", ErrInvalidPayload, c.EndBehavior)
	}
	if c.EndTime != nil && *c.EndTime <= c.StartTime {
		return c, fmt.Errorf("%w: subClip.endTime must be greater than startTime", ErrInvalidPayload)
	}
	return c, nil
}

// MediaRef points at the media a show displays.
type MediaRef struct {
	Type        MediaKind `json:"type"`
	Src         string    `json:"src,omitempty"`
	VideoID     string    `json:"videoId,omitempty"`
	AspectRatio float64   `json:"aspectRatio,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	Muted       bool      `json:"muted,omitempty"`
	Autoplay    *bool     `json:"autoplay,omitempty"`
}

// IsPlayable reports whether the media needs a playback controller.
func (m *MediaRef) IsPlayable() bool {
	return m != nil && (m.Type == MediaVideo || m.Type == MediaYouTube)
}

// ShouldAutoplay defaults to true for playable media.
func (m *MediaRef) ShouldAutoplay() bool {
	if m == nil || m.Autoplay == nil {
		return true
	}
	return *m.Autoplay
}

// ShowPayload is the typed view of a show or merged update payload. Unknown
// fields stay in the item's raw field map and are rendered verbatim.
type ShowPayload struct {
	Title          string         `json:"title,omitempty"`
	Subtitle       string         `json:"subtitle,omitempty"`
	Text           string         `json:"text,omitempty"`
	Author         string         `json:"author,omitempty"`
	Side           string         `json:"side,omitempty"`
	Theme          map[string]any `json:"theme,omitempty"`
	Transition     string         `json:"transition,omitempty"`
	Duration       float64        `json:"duration,omitempty"`
	Media          *MediaRef      `json:"media,omitempty"`
	SecondaryImage string         `json:"secondaryImage,omitempty"`
	SubClip        *SubClipConfig `json:"subClip,omitempty"`
	Chapters       []Chapter      `json:"chapters,omitempty"`
	Target         string         `json:"target,omitempty"`
}

// Validate checks the fields every overlay kind relies on.
func (p *ShowPayload) Validate() error {
	if p.Duration < 0 {
		return fmt.Errorf("%w: duration must be >= 0", ErrInvalidPayload)
	}
	switch strings.ToLower(p.Transition) {
	case "", TransitionFade, TransitionSlide, TransitionCrossfade, TransitionNone:
		p.Transition = strings.ToLower(p.Transition)
	default:
		return fmt.Errorf("%w: transition %q is not supported", ErrInvalidPayload, p.Transition)
	}
	if p.Media != nil {
		switch p.Media.Type {
		case MediaImage, MediaVideo:
			if strings.TrimSpace(p.Media.Src) == "" {
				return fmt.Errorf("%w: media.src is required for %s", ErrInvalidPayload, p.Media.Type)
			}
		case MediaYouTube:
			if strings.TrimSpace(p.Media.VideoID) == "" {
				return fmt.Errorf("%w: media.videoId is required for youtube", ErrInvalidPayload)
			}
		default:
			return fmt.Errorf("%w: media.type %q is not supported", ErrInvalidPayload, p.Media.Type)
		}
		if p.Media.AspectRatio < 0 {
			return fmt.Errorf("%w: media.aspectRatio must be >= 0", ErrInvalidPayload)
		}
	}
	if p.SubClip != nil {
		if !p.Media.IsPlayable() {
			return fmt.Errorf("%w: subClip requires video media", ErrInvalidPayload)
		}
		normalized, err := p.SubClip.Normalize()
		if err != nil {
			return err
		}
		p.SubClip = &normalized
	}
	seen := make(map[string]struct{}, len(p.Chapters))
	for i, ch := range p.Chapters {
		if ch.StartTime < 0 {
			return fmt.Errorf("%w: chapters[%d].startTime must be >= 0", ErrInvalidPayload, i)
		}
		if ch.ID == "" {
			continue
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("%w: chapter id %q is duplicated", ErrInvalidPayload, ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

// SortChapters returns chapters ordered by start time; ties keep their
// original order.
func SortChapters(chapters []Chapter) []Chapter {
	out := append([]Chapter(nil), chapters...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// SeekPayload is the payload of a seek event.
type SeekPayload struct {
	Time float64 `json:"time"`
}

// ChapterJumpPayload selects a chapter by id or zero-based index.
type ChapterJumpPayload struct {
	ID    string `json:"id,omitempty"`
	Index *int   `json:"index,omitempty"`
}
