package preflight

import (
	"context"

	"overlaycast/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirector(ctx, cfg.Director.URL),
	}

	if cfg.Media.ProbeVideo {
		for _, status := range CheckSystemDeps(ctx, cfg) {
			detail := status.Command
			if !status.Available {
				detail = status.Detail
			}
			results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
		}
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
