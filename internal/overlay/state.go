package overlay

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"overlaycast/internal/playback"
	"overlaycast/internal/protocol"
	"overlaycast/internal/transition"
)

// Phase is the visibility state of an overlay.
type Phase string

const (
	PhaseHidden    Phase = "hidden"
	PhaseVisible   Phase = "visible"
	PhaseCrossfade Phase = "crossfade"
	PhaseHiding    Phase = "hiding"
)

// Item is one shown payload.
type Item struct {
	ID          string
	Fields      map[string]any
	Show        protocol.ShowPayload
	AspectRatio float64
	ShownAt     time.Time
}

// ItemView is the rendered form of an Item.
type ItemView struct {
	ID          string         `json:"id"`
	Payload     map[string]any `json:"payload"`
	AspectRatio float64        `json:"aspectRatio,omitempty"`
	ShownAt     time.Time      `json:"shownAt"`
}

// Snapshot is a deep copy of one overlay's state.
type Snapshot struct {
	Overlay    string                  `json:"overlay"`
	Channel    string                  `json:"channel"`
	Kind       string                  `json:"kind"`
	Phase      Phase                   `json:"phase"`
	Visible    bool                    `json:"visible"`
	Hiding     bool                    `json:"hiding"`
	Current    *ItemView               `json:"current,omitempty"`
	Previous   *ItemView               `json:"previous,omitempty"`
	Transition string                  `json:"transition,omitempty"`
	Flags      transition.Flags        `json:"flags"`
	Playback   *protocol.PlaybackState `json:"playback,omitempty"`
	Chapters   []protocol.Chapter      `json:"chapters,omitempty"`
	Chapter    *protocol.Chapter       `json:"chapter,omitempty"`
	Version    uint64                  `json:"version"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

type entry struct {
	item Item
	ctrl *playback.Controller
}

func (e *entry) view() *ItemView {
	if e == nil {
		return nil
	}
	return &ItemView{
		ID:          e.item.ID,
		Payload:     cloneMap(e.item.Fields),
		AspectRatio: e.item.AspectRatio,
		ShownAt:     e.item.ShownAt,
	}
}

func (e *entry) release() {
	if e != nil && e.ctrl != nil {
		e.ctrl.Close()
	}
}

// decodeFields parses a raw payload into an object. An empty payload is an
// empty object.
func decodeFields(raw json.RawMessage) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: payload must be an object: %w", protocol.ErrInvalidPayload, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// typedPayload decodes and validates the typed view of fields.
func typedPayload(fields map[string]any) (protocol.ShowPayload, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return protocol.ShowPayload{}, fmt.Errorf("%w: %w", protocol.ErrInvalidPayload, err)
	}
	show, err := protocol.DecodePayload[protocol.ShowPayload](data)
	if err != nil {
		return protocol.ShowPayload{}, err
	}
	if err := show.Validate(); err != nil {
		return protocol.ShowPayload{}, err
	}
	return show, nil
}

// mergeFields applies an update patch: top-level keys replace, theme merges
// one level deep, and null deletes a key.
func mergeFields(base, patch map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = map[string]any{}
	}
	for key, value := range patch {
		if value == nil {
			delete(out, key)
			continue
		}
		if key == "theme" {
			patchTheme, okPatch := value.(map[string]any)
			baseTheme, okBase := out[key].(map[string]any)
			if okPatch && okBase {
				merged := maps.Clone(baseTheme)
				for k, v := range patchTheme {
					if v == nil {
						delete(merged, k)
						continue
					}
					merged[k] = v
				}
				out[key] = merged
				continue
			}
		}
		out[key] = value
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
