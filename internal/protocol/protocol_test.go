package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"overlaycast/internal/protocol"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantID  string
		wantAck bool
	}{
		{name: "show with id", raw: `{"type":"show","id":"e1","payload":{"title":"Hi"}}`, wantID: "e1", wantAck: true},
		{name: "no id", raw: `{"type":"hide"}`},
		{name: "not json", raw: `{"type":`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "missing type", raw: `{"id":"e2"}`, wantErr: true, wantID: "e2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := protocol.DecodeEnvelope([]byte(tc.raw))
			if tc.wantErr {
				if !errors.Is(err, protocol.ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("DecodeEnvelope failed: %v", err)
			}
			if env.ID != tc.wantID {
				t.Fatalf("unexpected id %q", env.ID)
			}
			if !tc.wantErr && env.NeedsAck() != tc.wantAck {
				t.Fatalf("NeedsAck = %v, want %v", env.NeedsAck(), tc.wantAck)
			}
		})
	}
}

func TestDecodeEnvelopeDropsNullPayload(t *testing.T) {
	env, err := protocol.DecodeEnvelope([]byte(`{"type":"play","payload":null}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Payload != nil {
		t.Fatalf("expected nil payload, got %s", env.Payload)
	}
	if !env.IsTransport() {
		t.Fatal("expected play to be a transport event")
	}
}

func TestAckWireShape(t *testing.T) {
	data, err := json.Marshal(protocol.NewAck("e7", "poster", false))
	if err != nil {
		t.Fatalf("marshal ack: %v", err)
	}
	want := `{"type":"ack","eventId":"e7","channel":"poster","success":false}`
	if string(data) != want {
		t.Fatalf("unexpected ack json %s", data)
	}
}

func TestShowPayloadValidate(t *testing.T) {
	end := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		payload protocol.ShowPayload
		wantErr bool
	}{
		{name: "text only", payload: protocol.ShowPayload{Title: "Guest"}},
		{name: "negative duration", payload: protocol.ShowPayload{Duration: -1}, wantErr: true},
		{name: "bad transition", payload: protocol.ShowPayload{Transition: "spin"}, wantErr: true},
		{name: "image without src", payload: protocol.ShowPayload{Media: &protocol.MediaRef{Type: protocol.MediaImage}}, wantErr: true},
		{name: "youtube", payload: protocol.ShowPayload{Media: &protocol.MediaRef{Type: protocol.MediaYouTube, VideoID: "abc"}}},
		{name: "subclip on image", payload: protocol.ShowPayload{
			Media:   &protocol.MediaRef{Type: protocol.MediaImage, Src: "a.png"},
			SubClip: &protocol.SubClipConfig{StartTime: 1},
		}, wantErr: true},
		{name: "subclip inverted", payload: protocol.ShowPayload{
			Media:   &protocol.MediaRef{Type: protocol.MediaVideo, Src: "a.mp4"},
			SubClip: &protocol.SubClipConfig{StartTime: 10, EndTime: end(5)},
		}, wantErr: true},
		{name: "duplicate chapters", payload: protocol.ShowPayload{
			Chapters: []protocol.Chapter{{ID: "a"}, {ID: "a", StartTime: 5}},
		}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := tc.payload
			err := payload.Validate()
			if tc.wantErr && !errors.Is(err, protocol.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSubClipNormalizeDefaultsToStop(t *testing.T) {
	cfg, err := protocol.SubClipConfig{StartTime: 3}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if cfg.EndBehavior != protocol.EndStop {
		t.Fatalf("expected stop default, got %q", cfg.EndBehavior)
	}
	if cfg.HasEnd() {
		t.Fatal("expected open window")
	}
}

func TestDecodePayloadWrapsErrors(t *testing.T) {
	if _, err := protocol.DecodePayload[protocol.SeekPayload](json.RawMessage(`{"time":"soon"}`)); !errors.Is(err, protocol.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	seek, err := protocol.DecodePayload[protocol.SeekPayload](nil)
	if err != nil || seek.Time != 0 {
		t.Fatalf("expected zero value for empty payload, got %+v %v", seek, err)
	}
}
