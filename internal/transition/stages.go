package transition

import "time"

// Visual flags raised by reveal sequences.
const (
	FlagVisible = "visible"
	FlagLogo    = "logoVisible"
	FlagFlip    = "flip"
	FlagBar     = "barVisible"
	FlagText    = "textVisible"
	FlagExiting = "exiting"
)

// Stage raises Flag once Delay has elapsed since the sequence started.
type Stage struct {
	Flag  string
	Delay time.Duration
}

// Timing holds the lower-third stage delays.
type Timing struct {
	Logo      time.Duration
	Flip      time.Duration
	Bar       time.Duration
	BarNoFlip time.Duration
	Text      time.Duration
}

// LowerThird builds the logo, flip, bar, text reveal. Without a secondary
// image the flip stage is skipped and the bar comes in sooner.
func LowerThird(t Timing, hasSecondary bool) []Stage {
	stages := []Stage{{Flag: FlagVisible}, {Flag: FlagLogo, Delay: t.Logo}}
	bar, text := t.Bar, t.Text
	if hasSecondary {
		stages = append(stages, Stage{Flag: FlagFlip, Delay: t.Flip})
	} else {
		// Without the flip the whole tail moves up, keeping the bar-to-text gap.
		shift := t.Bar - t.BarNoFlip
		bar, text = t.BarNoFlip, t.Text-shift
	}
	text = max(text, bar)
	return append(stages,
		Stage{Flag: FlagBar, Delay: bar},
		Stage{Flag: FlagText, Delay: text},
	)
}

// Simple is the single-stage reveal used by posters, countdowns and chat.
func Simple() []Stage {
	return []Stage{{Flag: FlagVisible}}
}
