package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one human readable line per record:
//
//	2026-01-02T15:04:05Z INFO channel: [lower-third] overlay shown event_id=e1
//
// The component and channel attrs become the line prefix; every other attr
// is appended as key=value with the last value winning for repeated keys.
type consoleHandler struct {
	out       *syncWriter
	level     slog.Leveler
	addSource bool
	group     string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{out: &syncWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	fields := slices.Clone(h.fields)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.group, attr)
		return true
	})
	component, fields := takeField(fields, FieldComponent)
	channel, fields := takeField(fields, FieldChannel)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteString(" " + levelLabel(record.Level) + " ")
	if component != "" {
		b.WriteString(component + ": ")
	}
	if channel != "" {
		b.WriteString("[" + channel + "] ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if src := record.Source(); h.addSource && src != nil {
		fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
	}
	for _, f := range lastWins(fields) {
		b.WriteString(" " + f.key + "=" + quoteIfNeeded(valueText(f.value)))
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = slices.Clone(h.fields)
	for _, attr := range attrs {
		clone.fields = appendField(clone.fields, h.group, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

// appendField flattens attr into dotted keys under group.
func appendField(dst []field, group string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return append(dst, field{key: joinKey(group, attr.Key), value: value})
	}
	inner := joinKey(group, attr.Key)
	for _, child := range value.Group() {
		dst = appendField(dst, inner, child)
	}
	return dst
}

func joinKey(group, key string) string {
	switch {
	case group == "":
		return key
	case key == "":
		return group
	default:
		return group + "." + key
	}
}

// takeField removes every field named key and returns the first value.
func takeField(fields []field, key string) (string, []field) {
	var found string
	kept := fields[:0]
	for _, f := range fields {
		if f.key != key {
			kept = append(kept, f)
			continue
		}
		if found == "" {
			found = valueText(f.value)
		}
	}
	return found, kept
}

// lastWins collapses repeated keys to their final value, keeping the slot of
// the first occurrence.
func lastWins(fields []field) []field {
	out := make([]field, 0, len(fields))
	slot := make(map[string]int, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := slot[f.key]; ok {
			out[i].value = f.value
			continue
		}
		slot[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
