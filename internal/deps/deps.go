// Package deps reports which external binaries overlaycast can execute.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an external binary. Fallbacks are absolute paths tried
// in order when Command is not on PATH.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Fallbacks   []string
}

// Status is the outcome of checking one Requirement. Command holds the
// resolved path when Available.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check resolves a single requirement.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if resolved, err := exec.LookPath(status.Command); err == nil {
		status.Command = resolved
		status.Available = true
		return status
	}
	for _, candidate := range req.Fallbacks {
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			status.Command = candidate
			status.Available = true
			return status
		}
	}
	status.Detail = fmt.Sprintf("binary %q not found", status.Command)
	return status
}

// CheckBinaries runs Check over every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Check(req)
	}
	return results
}
