package deps

import (
	"os"
	"path/filepath"
	"strings"
)

// FFprobeRequirement describes the ffprobe binary used for local video
// probing. Besides PATH, an ffprobe next to the running executable is
// accepted for bundled installs.
func FFprobeRequirement(configured string, optional bool) Requirement {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = "ffprobe"
	}
	req := Requirement{
		Name:        "FFprobe",
		Command:     name,
		Description: "Probes duration and aspect ratio of local video",
		Optional:    optional,
	}
	if self, err := os.Executable(); err == nil {
		if candidate, ok := sidecarCandidate(self, filepath.Base(name)); ok {
			req.Fallbacks = append(req.Fallbacks, candidate)
		}
	}
	return req
}

// CheckFFprobe reports whether the configured ffprobe can be executed.
func CheckFFprobe(configured string, optional bool) Status {
	return Check(FFprobeRequirement(configured, optional))
}

// ResolveFFprobePath returns the ffprobe command CheckFFprobe would run.
func ResolveFFprobePath(configured string) string {
	return CheckFFprobe(configured, true).Command
}

func sidecarCandidate(executable, name string) (string, bool) {
	if executable == "" || name == "" || name == "." {
		return "", false
	}
	return filepath.Join(filepath.Dir(executable), name), true
}

func isExecutable(info os.FileInfo) bool {
	return info != nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0
}
