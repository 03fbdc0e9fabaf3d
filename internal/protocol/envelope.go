package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Director event types.
const (
	TypeShow            = "show"
	TypeHide            = "hide"
	TypeUpdate          = "update"
	TypePlay            = "play"
	TypePause           = "pause"
	TypeSeek            = "seek"
	TypeMute            = "mute"
	TypeUnmute          = "unmute"
	TypeChapterNext     = "chapter-next"
	TypeChapterPrevious = "chapter-previous"
	TypeChapterJump     = "chapter-jump"
	TypeState           = "state"
	TypeAck             = "ack"
	TypeSubscribe       = "subscribe"
)

var (
	ErrMalformed        = errors.New("malformed frame")
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrNotVisible       = errors.New("overlay not visible")
	ErrNoMedia          = errors.New("no active media")
	ErrNoChapter        = errors.New("no matching chapter")
)

// Envelope is an inbound director command.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NeedsAck reports whether the director expects an acknowledgment.
func (e Envelope) NeedsAck() bool {
	return e.ID != ""
}

// IsTransport reports whether the event drives the active media element.
func (e Envelope) IsTransport() bool {
	switch e.Type {
	case TypePlay, TypePause, TypeSeek, TypeMute, TypeUnmute,
		TypeChapterNext, TypeChapterPrevious, TypeChapterJump:
		return true
	}
	return false
}

// DecodeEnvelope parses a raw frame. Frames that are not JSON objects or lack
// a type are reported as ErrMalformed; the id, when recoverable, is still
// returned so callers can log it.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	env.Type = strings.TrimSpace(env.Type)
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if len(env.Payload) > 0 && bytes.Equal(bytes.TrimSpace(env.Payload), []byte("null")) {
		env.Payload = nil
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into T. An empty payload
// yields the zero value.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return out, nil
}

// Ack acknowledges a handled envelope.
type Ack struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Channel string `json:"channel"`
	Success bool   `json:"success"`
}

// NewAck builds the acknowledgment for eventID on channel.
func NewAck(eventID, channel string, success bool) Ack {
	return Ack{Type: TypeAck, EventID: eventID, Channel: channel, Success: success}
}

// Subscribe is the handshake sent for every logical channel after connect.
type Subscribe struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// NewSubscribe builds the subscribe handshake for channel.
func NewSubscribe(channel string) Subscribe {
	return Subscribe{Type: TypeSubscribe, Channel: channel}
}

// StateReport carries playback state upstream once per tick.
type StateReport struct {
	Type    string        `json:"type"`
	Channel string        `json:"channel"`
	Payload PlaybackState `json:"payload"`
}

// NewStateReport wraps state for channel.
func NewStateReport(channel string, state PlaybackState) StateReport {
	return StateReport{Type: TypeState, Channel: channel, Payload: state}
}
