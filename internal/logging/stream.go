package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	Overlay   string            `json:"overlay,omitempty"`
	EventID   string            `json:"event_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a ring and lets readers
// follow it by sequence number. Sequences start at 1 and are contiguous.
type StreamHub struct {
	mu     sync.Mutex
	ring   []LogEvent
	head   int
	size   int
	seq    uint64
	notify chan struct{}
}

// NewStreamHub builds a hub retaining capacity events (512 when <= 0).
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{
		ring:   make([]LogEvent, capacity),
		notify: make(chan struct{}),
	}
}

// Publish stamps evt with the next sequence, overwriting the oldest event
// once the ring is full, and wakes every waiting Fetch.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt.Sequence = h.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.size < len(h.ring) {
		h.ring[(h.head+h.size)%len(h.ring)] = evt
		h.size++
	} else {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	}
	close(h.notify)
	h.notify = make(chan struct{})
}

// Fetch returns up to limit events with a sequence greater than since and
// the cursor to pass next time. With wait set it blocks until an event
// arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		h.mu.Lock()
		events, next := h.afterLocked(since, limit)
		woken := h.notify
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		select {
		case <-woken:
		case <-ctx.Done():
			return nil, next, ctx.Err()
		}
	}
}

// Tail returns the newest limit events and the latest sequence.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	return h.rangeLocked(h.size-limit, h.size), h.seq
}

func (h *StreamHub) afterLocked(since uint64, limit int) ([]LogEvent, uint64) {
	if since >= h.seq || h.size == 0 {
		return nil, h.seq
	}
	oldest := h.seq - uint64(h.size) + 1
	from := 0
	if since >= oldest {
		from = int(since - oldest + 1)
	}
	if limit <= 0 || limit > len(h.ring) {
		limit = len(h.ring)
	}
	to := min(from+limit, h.size)
	out := h.rangeLocked(from, to)
	return out, out[len(out)-1].Sequence
}

// rangeLocked copies logical positions [from, to) out of the ring.
func (h *StreamHub) rangeLocked(from, to int) []LogEvent {
	if to <= from {
		return nil
	}
	out := make([]LogEvent, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, h.ring[(h.head+i)%len(h.ring)])
	}
	return out
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: combined}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range preAttrs {
		event.setAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event.setAttr(attr)
		return true
	})
	return event
}

// setAttr lifts the routing fields into their own columns and keeps
// everything else as flattened strings.
func (e *LogEvent) setAttr(attr slog.Attr) {
	key := strings.TrimSpace(attr.Key)
	value := valueText(attr.Value.Resolve())
	switch key {
	case "":
	case FieldComponent:
		e.Component = value
	case FieldChannel:
		e.Channel = value
	case FieldOverlay:
		e.Overlay = value
	case FieldEventID:
		e.EventID = value
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[key] = value
	}
}
