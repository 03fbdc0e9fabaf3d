package chapters_test

import (
	"errors"
	"testing"

	"overlaycast/internal/chapters"
	"overlaycast/internal/protocol"
)

func sample() []protocol.Chapter {
	// Deliberately unordered; navigation must not depend on input order.
	return []protocol.Chapter{
		{ID: "c180", StartTime: 180, Label: "Outro"},
		{ID: "c0", StartTime: 0, Label: "Intro"},
		{ID: "c120", StartTime: 120, Label: "Demo"},
		{ID: "c60", StartTime: 60, Label: "Talk"},
	}
}

func TestNextAndPrevious(t *testing.T) {
	tests := []struct {
		at       float64
		wantNext string
		wantPrev string
	}{
		{at: 125, wantNext: "c180", wantPrev: "c120"},
		{at: 120, wantNext: "c180", wantPrev: "c120"},
		{at: 0, wantNext: "c60", wantPrev: "c0"},
		{at: 59.9, wantNext: "c60", wantPrev: "c0"},
		{at: 200, wantNext: "", wantPrev: "c180"},
	}
	for _, tc := range tests {
		next, ok := chapters.Next(sample(), tc.at)
		if got := idOrEmpty(next, ok); got != tc.wantNext {
			t.Fatalf("Next(%v) = %q, want %q", tc.at, got, tc.wantNext)
		}
		prev, ok := chapters.Previous(sample(), tc.at)
		if got := idOrEmpty(prev, ok); got != tc.wantPrev {
			t.Fatalf("Previous(%v) = %q, want %q", tc.at, got, tc.wantPrev)
		}
	}
}

func TestPreviousBeforeFirstChapter(t *testing.T) {
	list := []protocol.Chapter{{ID: "a", StartTime: 10}}
	if _, ok := chapters.Previous(list, 5); ok {
		t.Fatal("expected no previous chapter before the first start")
	}
}

func TestJumpByIDAndIndex(t *testing.T) {
	ch, err := chapters.Jump(sample(), "c60")
	if err != nil || ch.StartTime != 60 {
		t.Fatalf("Jump by id: %+v %v", ch, err)
	}
	ch, err = chapters.Jump(sample(), "2")
	if err != nil || ch.ID != "c120" {
		t.Fatalf("Jump by index: %+v %v", ch, err)
	}
	if _, err := chapters.Jump(sample(), "9"); !errors.Is(err, protocol.ErrNoChapter) {
		t.Fatalf("expected ErrNoChapter for out of range, got %v", err)
	}
	if _, err := chapters.Jump(sample(), "missing"); !errors.Is(err, protocol.ErrNoChapter) {
		t.Fatalf("expected ErrNoChapter for unknown id, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	index := 0
	ch, err := chapters.Resolve(sample(), protocol.TypeChapterJump, 100, protocol.ChapterJumpPayload{Index: &index})
	if err != nil || ch.ID != "c0" {
		t.Fatalf("Resolve jump: %+v %v", ch, err)
	}
	if _, err := chapters.Resolve(sample(), protocol.TypeChapterNext, 180, protocol.ChapterJumpPayload{}); !errors.Is(err, protocol.ErrNoChapter) {
		t.Fatalf("expected ErrNoChapter past last chapter, got %v", err)
	}
	if _, err := chapters.Resolve(sample(), protocol.TypeChapterJump, 0, protocol.ChapterJumpPayload{}); !errors.Is(err, protocol.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty jump, got %v", err)
	}
	if _, err := chapters.Resolve(nil, protocol.TypeChapterPrevious, 10, protocol.ChapterJumpPayload{}); !errors.Is(err, protocol.ErrNoChapter) {
		t.Fatalf("expected ErrNoChapter with no chapters, got %v", err)
	}
}

func idOrEmpty(ch protocol.Chapter, ok bool) string {
	if !ok {
		return ""
	}
	return ch.ID
}

func TestSortKeepsInputUntouched(t *testing.T) {
	in := sample()
	in = append(in, protocol.Chapter{ID: "c60b", StartTime: 60, Label: "Talk, part two"})
	got := chapters.Sort(in)
	want := []string{"c0", "c60", "c60b", "c120", "c180"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("Sort()[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if in[0].ID != "c180" {
		t.Fatalf("expected input order preserved, got %s first", in[0].ID)
	}
}
