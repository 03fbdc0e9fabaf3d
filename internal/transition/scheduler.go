// Package transition runs declarative reveal sequences: a list of
// (delay, flag) stages evaluated relative to show time. Starting a sequence
// always clears every pending stage and resets every flag first.
package transition

import (
	"maps"
	"sync"

	"overlaycast/internal/clock"
)

// Flags maps visual flag names to their current value.
type Flags map[string]bool

// Scheduler owns the stage timers for one overlay instance.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	gen      uint64
	timers   map[int]clock.Timer
	flags    Flags
	onChange func()
}

// NewScheduler builds a scheduler. onChange, when set, runs after any timer
// raised a flag; it is called without the scheduler lock held.
func NewScheduler(c clock.Clock, onChange func()) *Scheduler {
	return &Scheduler{
		clock:    clock.OrReal(c),
		timers:   make(map[int]clock.Timer),
		flags:    Flags{},
		onChange: onChange,
	}
}

// Start replaces the running sequence. Zero-delay stages apply before Start
// returns.
func (s *Scheduler) Start(stages []Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	gen := s.gen
	for idx, stage := range stages {
		if stage.Delay <= 0 {
			s.flags[stage.Flag] = true
			continue
		}
		flag := stage.Flag
		s.timers[idx] = s.clock.AfterFunc(stage.Delay, func() {
			s.fire(gen, idx, flag)
		})
	}
}

// Exit cancels stages that have not fired and raises the exiting flag.
// Flags already raised stay up so the exit animates from the current look.
func (s *Scheduler) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	s.gen++
	s.flags[FlagExiting] = true
}

// Cancel stops every pending stage and clears all flags.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Flags returns a copy of the current flags.
func (s *Scheduler) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.flags)
}

// Pending reports how many stages are still waiting.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(gen uint64, idx int, flag string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.flags[flag] = true
	delete(s.timers, idx)
	notify := s.onChange
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (s *Scheduler) resetLocked() {
	s.stopTimersLocked()
	s.gen++
	s.flags = Flags{}
}

func (s *Scheduler) stopTimersLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[int]clock.Timer)
}
