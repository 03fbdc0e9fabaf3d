package transition_test

import (
	"testing"
	"time"

	"overlaycast/internal/clock"
	"overlaycast/internal/transition"
)

var timing = transition.Timing{
	Logo:      0,
	Flip:      1200 * time.Millisecond,
	Bar:       1800 * time.Millisecond,
	BarNoFlip: 400 * time.Millisecond,
	Text:      2300 * time.Millisecond,
}

func TestLowerThirdWithSecondaryImage(t *testing.T) {
	stages := transition.LowerThird(timing, true)
	want := map[string]time.Duration{
		transition.FlagVisible: 0,
		transition.FlagLogo:    0,
		transition.FlagFlip:    1200 * time.Millisecond,
		transition.FlagBar:     1800 * time.Millisecond,
		transition.FlagText:    2300 * time.Millisecond,
	}
	assertStages(t, stages, want)
}

func TestLowerThirdWithoutSecondaryDropsFlip(t *testing.T) {
	stages := transition.LowerThird(timing, false)
	want := map[string]time.Duration{
		transition.FlagVisible: 0,
		transition.FlagLogo:    0,
		transition.FlagBar:     400 * time.Millisecond,
		transition.FlagText:    900 * time.Millisecond,
	}
	assertStages(t, stages, want)
}

func TestSchedulerRaisesFlagsOnTime(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	changes := 0
	s := transition.NewScheduler(fake, func() { changes++ })

	s.Start(transition.LowerThird(timing, true))
	flags := s.Flags()
	if !flags[transition.FlagLogo] || flags[transition.FlagFlip] {
		t.Fatalf("unexpected flags at show: %v", flags)
	}

	fake.Advance(1200 * time.Millisecond)
	if !s.Flags()[transition.FlagFlip] {
		t.Fatal("expected flip at 1200ms")
	}
	if s.Flags()[transition.FlagBar] {
		t.Fatal("bar raised too early")
	}

	fake.Advance(1100 * time.Millisecond)
	flags = s.Flags()
	if !flags[transition.FlagBar] || !flags[transition.FlagText] {
		t.Fatalf("expected bar and text by 2300ms: %v", flags)
	}
	if changes != 3 {
		t.Fatalf("expected 3 change notifications, got %d", changes)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending stages, got %d", s.Pending())
	}
}

func TestSchedulerRestartClearsStaleStages(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	s := transition.NewScheduler(fake, nil)

	s.Start(transition.LowerThird(timing, true))
	fake.Advance(1500 * time.Millisecond)
	if !s.Flags()[transition.FlagFlip] {
		t.Fatal("expected flip before restart")
	}

	// Rapid repeat show: everything resets and the old bar/text timers must
	// not land on the new sequence.
	s.Start(transition.LowerThird(timing, false))
	flags := s.Flags()
	if flags[transition.FlagFlip] || flags[transition.FlagBar] {
		t.Fatalf("expected flags reset on restart, got %v", flags)
	}

	fake.Advance(300 * time.Millisecond) // 1800ms since the first start
	if s.Flags()[transition.FlagBar] {
		t.Fatal("stale bar timer fired after restart")
	}
	fake.Advance(100 * time.Millisecond)
	if !s.Flags()[transition.FlagBar] {
		t.Fatal("expected new bar at 400ms after restart")
	}
	if s.Flags()[transition.FlagFlip] {
		t.Fatal("flip must not appear without a secondary image")
	}
}

func TestSchedulerExitCancelsPending(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	s := transition.NewScheduler(fake, nil)
	s.Start(transition.LowerThird(timing, true))
	fake.Advance(500 * time.Millisecond)

	s.Exit()
	fake.Advance(5 * time.Second)
	flags := s.Flags()
	if !flags[transition.FlagExiting] {
		t.Fatal("expected exiting flag")
	}
	if !flags[transition.FlagLogo] {
		t.Fatal("expected raised flags to stay during exit")
	}
	if flags[transition.FlagText] || flags[transition.FlagFlip] {
		t.Fatalf("pending stages fired after exit: %v", flags)
	}
	if fake.Pending() != 0 {
		t.Fatalf("expected timers stopped, %d pending", fake.Pending())
	}

	s.Cancel()
	if len(s.Flags()) != 0 {
		t.Fatalf("expected cancel to clear flags, got %v", s.Flags())
	}
}

func assertStages(t *testing.T, stages []transition.Stage, want map[string]time.Duration) {
	t.Helper()
	if len(stages) != len(want) {
		t.Fatalf("expected %d stages, got %d: %+v", len(want), len(stages), stages)
	}
	for _, stage := range stages {
		delay, ok := want[stage.Flag]
		if !ok {
			t.Fatalf("unexpected stage %q", stage.Flag)
		}
		if stage.Delay != delay {
			t.Fatalf("stage %q delay = %s, want %s", stage.Flag, stage.Delay, delay)
		}
	}
}
