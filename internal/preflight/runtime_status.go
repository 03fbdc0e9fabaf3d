package preflight

import (
	"context"
	"strings"

	"overlaycast/internal/config"
)

// DirectorStatusFromConfig evaluates director reachability for display when
// no daemon is running to report its live connection state.
func DirectorStatusFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Director"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Director.URL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckDirector(ctx, cfg.Director.URL)
}

// StatusLabel condenses a result to the single word the status table shows.
func StatusLabel(r Result) string {
	switch {
	case r.Passed:
		return "Ready"
	case strings.Contains(r.Detail, "timed out"):
		return "Timeout"
	case strings.HasPrefix(r.Detail, "Missing"), strings.HasPrefix(r.Detail, "missing"):
		return "Not configured"
	default:
		return "Unavailable"
	}
}
