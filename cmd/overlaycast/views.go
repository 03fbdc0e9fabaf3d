package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"overlaycast/internal/api"
	"overlaycast/internal/protocol"
)

var (
	overlayHeaders = []string{"Overlay", "Channel", "Kind", "Phase", "Current", "Playing", "Updated"}
	overlayAligns  = []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}

	titleCaser = cases.Title(language.English)
)

func buildOverlayRows(overlays []api.OverlaySummary) [][]string {
	rows := make([][]string, 0, len(overlays))
	for _, o := range overlays {
		current := o.CurrentID
		if current == "" {
			current = "-"
		}
		rows = append(rows, []string{
			o.Name,
			o.Channel,
			o.Kind,
			formatPhase(o.Phase),
			current,
			yesNo(o.Playing),
			formatDisplayTime(o.UpdatedAt),
		})
	}
	return rows
}

func buildJournalStatsRows(stats []api.JournalStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Channel,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Failed),
			formatDisplayTime(s.LastAt),
		})
	}
	return rows
}

func buildJournalRows(entries []api.JournalEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = e.Error
			if result == "" {
				result = "failed"
			}
		}
		rows = append(rows, []string{
			formatDisplayTime(e.RecordedAt),
			e.Channel,
			e.Type,
			e.EventID,
			e.Source,
			fmt.Sprintf("%.1fms", e.DurationMS),
			result,
		})
	}
	return rows
}

func buildChapterRows(chapters []protocol.Chapter, current *protocol.Chapter) [][]string {
	rows := make([][]string, 0, len(chapters))
	for i, ch := range chapters {
		marker := ""
		if current != nil && current.ID == ch.ID {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(i + 1),
			ch.ID,
			formatOffset(ch.StartTime),
			ch.Label,
		})
	}
	return rows
}

// describeOverlay renders the detailed single overlay view.
func describeOverlay(state api.OverlayState) []string {
	lines := []string{
		fmt.Sprintf("Overlay:    %s", state.Name),
		fmt.Sprintf("Channel:    %s", state.Channel),
		fmt.Sprintf("Kind:       %s", state.Kind),
		fmt.Sprintf("Phase:      %s", formatPhase(state.Phase)),
		fmt.Sprintf("Visible:    %s", yesNo(state.Visible)),
		fmt.Sprintf("Version:    %d", state.Version),
	}
	if state.UpdatedAt != "" {
		lines = append(lines, fmt.Sprintf("Updated:    %s", formatDisplayTime(state.UpdatedAt)))
	}
	if state.Transition != "" {
		lines = append(lines, fmt.Sprintf("Transition: %s", state.Transition))
	}
	if len(state.Flags) > 0 {
		lines = append(lines, fmt.Sprintf("Flags:      %s", formatFlags(state.Flags)))
	}
	if state.Current != nil {
		lines = append(lines, "Current:")
		lines = append(lines, describeItem(state.Current)...)
	}
	if state.Previous != nil {
		lines = append(lines, "Previous:")
		lines = append(lines, describeItem(state.Previous)...)
	}
	if pb := state.Playback; pb != nil {
		lines = append(lines, fmt.Sprintf("Playback:   %s / %s (playing: %s, muted: %s)",
			formatOffset(pb.CurrentTime), formatOffset(pb.Duration), yesNo(pb.IsPlaying), yesNo(pb.IsMuted)))
	}
	if state.Chapter != nil {
		lines = append(lines, fmt.Sprintf("Chapter:    %s (%s)", state.Chapter.Label, state.Chapter.ID))
	}
	return lines
}

func describeItem(item *api.ItemView) []string {
	lines := []string{fmt.Sprintf("  id:       %s", item.ID)}
	if item.AspectRatio > 0 {
		lines = append(lines, fmt.Sprintf("  aspect:   %.3f", item.AspectRatio))
	}
	if item.ShownAt != "" {
		lines = append(lines, fmt.Sprintf("  shown:    %s", formatDisplayTime(item.ShownAt)))
	}
	keys := make([]string, 0, len(item.Payload))
	for k := range item.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, item.Payload[k]))
	}
	return lines
}

func formatFlags(flags map[string]bool) string {
	keys := make([]string, 0, len(flags))
	for k, v := range flags {
		if v {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "-"
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func formatPhase(phase string) string {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(phase, "_", " "))
}

func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatDisplayTime(value string) string {
	t := parseAPITime(value)
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func parseAPITime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
