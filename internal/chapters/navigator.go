// Package chapters resolves chapter navigation against the live playback
// position. Every function is pure over (chapters, currentTime); nothing here
// remembers a position of its own.
package chapters

import (
	"fmt"
	"strconv"
	"strings"

	"overlaycast/internal/protocol"
)

// Sort returns a copy ordered by start time. Chapters sharing a start time
// keep their input order.
func Sort(chapters []protocol.Chapter) []protocol.Chapter {
	return protocol.SortChapters(chapters)
}

// Next returns the chapter with the smallest start time strictly greater
// than t.
func Next(chapters []protocol.Chapter, t float64) (protocol.Chapter, bool) {
	var (
		best  protocol.Chapter
		found bool
	)
	for _, ch := range chapters {
		if ch.StartTime <= t {
			continue
		}
		if !found || ch.StartTime < best.StartTime {
			best, found = ch, true
		}
	}
	return best, found
}

// Previous returns the chapter with the greatest start time less than or
// equal to t, so that stepping back from mid-chapter lands on the chapter
// start.
func Previous(chapters []protocol.Chapter, t float64) (protocol.Chapter, bool) {
	var (
		best  protocol.Chapter
		found bool
	)
	for _, ch := range chapters {
		if ch.StartTime > t {
			continue
		}
		if !found || ch.StartTime > best.StartTime {
			best, found = ch, true
		}
	}
	return best, found
}

// Current is the chapter containing t.
func Current(chapters []protocol.Chapter, t float64) (protocol.Chapter, bool) {
	return Previous(chapters, t)
}

// Jump resolves ref as a chapter id first and then as a zero-based index
// into the start-time ordered list.
func Jump(chapters []protocol.Chapter, ref string) (protocol.Chapter, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return protocol.Chapter{}, fmt.Errorf("%w: empty chapter reference", protocol.ErrNoChapter)
	}
	for _, ch := range chapters {
		if ch.ID == ref {
			return ch, nil
		}
	}
	index, err := strconv.Atoi(ref)
	if err != nil {
		return protocol.Chapter{}, fmt.Errorf("%w: id %q", protocol.ErrNoChapter, ref)
	}
	return JumpIndex(chapters, index)
}

// JumpIndex selects the index-th chapter in start-time order.
func JumpIndex(chapters []protocol.Chapter, index int) (protocol.Chapter, error) {
	ordered := Sort(chapters)
	if index < 0 || index >= len(ordered) {
		return protocol.Chapter{}, fmt.Errorf("%w: index %d out of range [0,%d)", protocol.ErrNoChapter, index, len(ordered))
	}
	return ordered[index], nil
}

// Resolve applies a chapter navigation event type at position t.
func Resolve(chapters []protocol.Chapter, eventType string, t float64, jump protocol.ChapterJumpPayload) (protocol.Chapter, error) {
	switch eventType {
	case protocol.TypeChapterNext:
		if ch, ok := Next(chapters, t); ok {
			return ch, nil
		}
		return protocol.Chapter{}, fmt.Errorf("%w: no chapter after %.3fs", protocol.ErrNoChapter, t)
	case protocol.TypeChapterPrevious:
		if ch, ok := Previous(chapters, t); ok {
			return ch, nil
		}
		return protocol.Chapter{}, fmt.Errorf("%w: no chapter at or before %.3fs", protocol.ErrNoChapter, t)
	case protocol.TypeChapterJump:
		if jump.ID != "" {
			return Jump(chapters, jump.ID)
		}
		if jump.Index != nil {
			return JumpIndex(chapters, *jump.Index)
		}
		return protocol.Chapter{}, fmt.Errorf("%w: chapter-jump needs id or index", protocol.ErrInvalidPayload)
	default:
		return protocol.Chapter{}, fmt.Errorf("%w: %s", protocol.ErrUnsupportedEvent, eventType)
	}
}
