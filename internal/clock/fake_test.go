package clock_test

import (
	"testing"
	"time"

	"overlaycast/internal/clock"
)

func TestFakeFiresInDueOrder(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var order []string
	fake.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	fake.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	fake.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })

	fake.Advance(250 * time.Millisecond)
	if got := len(order); got != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order after 250ms: %v", order)
	}
	fake.Advance(50 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("expected c to fire at 300ms, got %v", order)
	}
	if fake.Now() != time.Unix(0, 0).Add(300*time.Millisecond) {
		t.Fatalf("unexpected now: %v", fake.Now())
	}
}

func TestFakeStopPreventsCallback(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	fired := false
	timer := fake.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected Stop to report pending timer")
	}
	if timer.Stop() {
		t.Fatal("expected second Stop to report false")
	}
	fake.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if fake.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", fake.Pending())
	}
}

func TestFakeFiresTimersArmedDuringAdvance(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		fake.AfterFunc(time.Second, tick)
	}
	fake.AfterFunc(time.Second, tick)

	fake.Advance(3500 * time.Millisecond)
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}
	if fake.Pending() != 1 {
		t.Fatalf("expected rearmed timer pending, got %d", fake.Pending())
	}
}
