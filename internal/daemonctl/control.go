package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"overlaycast/internal/api"
	"overlaycast/internal/config"
	"overlaycast/internal/ipc"
	"overlaycast/internal/journal"
	"overlaycast/internal/preflight"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached overlaycast daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	proc := exec.Command(executablePath, launchArgs(opts)...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

func launchArgs(opts LaunchOptions) []string {
	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

const (
	pidFileName  = "overlaycast.pid"
	lockFileName = "overlaycast.lock"
	pollInterval = 200 * time.Millisecond
)

// poll calls fn until it reports done, returns an error, or timeout passes.
// The last non-nil soft error is kept for the timeout message.
func poll(timeout time.Duration, fn func() (done bool, soft error)) error {
	deadline := time.Now().Add(timeout)
	var last error
	for {
		done, soft := fn()
		if done {
			return nil
		}
		if soft != nil {
			last = soft
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	if last == nil {
		last = fmt.Errorf("timed out after %s", timeout)
	}
	return last
}

// WaitForClient dials the socket until the daemon answers.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := poll(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted launches the daemon process when its socket is absent, then
// asks it to connect to the director.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	launched := false
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return StartResult{}, err
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()
	return startVia(client, launched)
}

func startVia(client *ipc.Client, launched bool) (StartResult, error) {
	started := StartResult{State: StartStateStarted, Launched: launched}
	if status, err := client.Status(); err == nil && status != nil && status.Running {
		if launched {
			return started, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	message := ""
	if resp != nil {
		message = strings.TrimSpace(resp.Message)
	}
	switch {
	case resp != nil && resp.Started:
		started.Message = message
		return started, nil
	case strings.EqualFold(message, "daemon already running") && !launched:
		return StartResult{State: StartStateAlreadyRunning, Message: message}, nil
	case strings.EqualFold(message, "daemon already running"):
		started.Message = message
		return started, nil
	case message == "":
		message = "Start request sent"
	}
	return StartResult{State: StartStateRequested, Launched: launched, Message: message}, nil
}

// WaitForShutdown waits until the socket is gone or the daemon reports it
// is no longer running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := poll(timeout, func() (bool, error) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return isDaemonUnavailable(err), err
		}
		defer client.Close()
		status, err := client.Status()
		if err != nil {
			return false, err
		}
		if status.Running {
			return false, errors.New("daemon still running")
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo reports whether the daemon answers on socketPath and its pid.
func ProcessInfo(socketPath string) (alive bool, pid int, err error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// DeriveStateDir prefers the directory of the daemon's lock file and falls
// back to the configured state directory.
func DeriveStateDir(lockPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if cfg != nil {
		return strings.TrimSpace(cfg.Paths.StateDir)
	}
	return ""
}

// readPID returns the pid recorded in path, or 0 when the file is missing
// or empty.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// ForceKillProcess SIGKILLs the daemon named by the pid file (or
// fallbackPID) and removes its pid and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning is returned when nothing answers on the socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult describes how the daemon went away.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult pairs the stop and start halves of a restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate asks the daemon to stop, then ends the process: SIGTERM
// first, SIGKILL when it is still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var lockPath string
	var result StopResult
	if status, err := client.Status(); err == nil && status != nil {
		lockPath = status.LockFilePath
		result.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result.StopAcknowledged = resp != nil && resp.Stopped

	// Stop only disconnects; the process keeps serving IPC until signalled.
	_ = WaitForShutdown(socketPath, gracePeriod)
	alive, livePID, err := ProcessInfo(socketPath)
	if err != nil || !alive {
		return result, nil
	}
	if livePID != 0 {
		result.PID = livePID
	}

	stateDir := DeriveStateDir(lockPath, cfg)
	if stateDir == "" {
		return result, errors.New("unable to determine daemon state directory")
	}
	pidPath := filepath.Join(stateDir, pidFileName)
	lockFile := filepath.Join(stateDir, lockFileName)
	if err := terminate(result.PID, pidPath, lockFile, gracePeriod); err == nil {
		_ = os.Remove(socketPath)
		return result, nil
	}
	killed, err := ForceKillProcess(pidPath, lockFile, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// terminate sends SIGTERM and waits for the daemon to remove its pid file.
func terminate(pid int, pidPath, lockPath string, timeout time.Duration) error {
	if pid <= 0 || pid == os.Getpid() {
		return fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	return poll(timeout, func() (bool, error) {
		if _, err := os.Stat(pidPath); errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(lockPath)
			return true, nil
		}
		return false, fmt.Errorf("process %d still running after SIGTERM", pid)
	})
}

// Restart terminates a running daemon and launches a fresh one. A daemon
// that was not running is simply started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	var result RestartResult
	var err error
	result.Stop, err = StopAndTerminate(socketPath, cfg, stopGracePeriod)
	switch {
	case err == nil:
		result.WasRunning = true
	case !errors.Is(err, ErrDaemonNotRunning):
		return RestartResult{}, err
	}
	result.Start, err = EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}
	return result, nil
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for journal stats and dependencies.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	statusResp := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			statusResp = resp
		}
	}

	if cfg.Journal.Enabled {
		statusResp.JournalStats = loadJournalStats(ctx, cfg)
	}

	if len(statusResp.Dependencies) == 0 {
		statusResp.Dependencies = ResolveDependencies(ctx, cfg)
	}
	for i := range statusResp.Dependencies {
		if strings.TrimSpace(statusResp.Dependencies[i].Severity) != "" {
			continue
		}
		statusResp.Dependencies[i].Severity = dependencySeverity(statusResp.Dependencies[i])
	}

	statusResp.SystemChecks = BuildSystemChecks(ctx, cfg, statusResp)
	statusResp.PathChecks = BuildPathChecks(cfg)
	statusResp.DependencySummary = BuildDependencySummary(statusResp.Dependencies)
	return statusResp, nil
}

// loadJournalStats reads per-channel totals straight from the database,
// which works whether or not the daemon is running.
func loadJournalStats(ctx context.Context, cfg *config.Config) []api.JournalStats {
	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		return nil
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := journal.Open(cfg)
	if err != nil {
		return nil
	}
	defer store.Close()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return nil
	}
	return api.FromJournalStats(stats)
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func dependencySeverity(dep ipc.DependencyStatus) string {
	if dep.Available {
		return "ok"
	}
	if dep.Optional {
		return "warn"
	}
	return "error"
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}

	checks := preflight.CheckSystemDeps(ctx, cfg)
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		status := ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		}
		status.Severity = dependencySeverity(status)
		statuses = append(statuses, status)
	}
	return statuses
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status *ipc.StatusResponse) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 4)
	running := status != nil && status.Running
	if running {
		lines = append(lines, api.StatusLine{Label: "Overlaycast", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Overlaycast", Severity: "warn", Detail: "Not running (run `overlaycast start`)"})
	}

	if running {
		lines = append(lines, directorLine(status.Director))
	} else {
		result := preflight.DirectorStatusFromConfig(ctx, cfg)
		lines = append(lines, api.StatusLine{
			Label:    "Director",
			Severity: severityFor(result.Passed, "warn"),
			Detail:   fmt.Sprintf("%s: %s", preflight.StatusLabel(result), result.Detail),
		})
	}

	if running && status.APIAddress != "" {
		lines = append(lines, api.StatusLine{Label: "Render API", Severity: "ok", Detail: status.APIAddress})
	} else if strings.TrimSpace(cfg.Paths.APIBind) == "" {
		lines = append(lines, api.StatusLine{Label: "Render API", Severity: "info", Detail: "Disabled"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Render API", Severity: "info", Detail: "Inactive (daemon not running)"})
	}

	if cfg.Journal.Enabled {
		detail := cfg.JournalPath()
		severity := "ok"
		if status != nil && status.JournalDropped > 0 {
			detail = fmt.Sprintf("%s (%d dropped)", detail, status.JournalDropped)
			severity = "warn"
		}
		lines = append(lines, api.StatusLine{Label: "Journal", Severity: severity, Detail: detail})
	} else {
		lines = append(lines, api.StatusLine{Label: "Journal", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

func directorLine(d api.DirectorStatus) api.StatusLine {
	switch d.State {
	case "connected":
		detail := d.URL
		if d.Reconnects > 0 {
			detail = fmt.Sprintf("%s (%d reconnects)", d.URL, d.Reconnects)
		}
		return api.StatusLine{Label: "Director", Severity: "ok", Detail: detail}
	case "":
		return api.StatusLine{Label: "Director", Severity: "info", Detail: "Unknown"}
	default:
		detail := fmt.Sprintf("%s (%s)", d.URL, d.State)
		if d.LastError != "" {
			detail = fmt.Sprintf("%s: %s", detail, d.LastError)
		}
		return api.StatusLine{Label: "Director", Severity: "warn", Detail: detail}
	}
}

// severityFor is "ok" when passed and otherwise the given failure severity.
func severityFor(passed bool, failure string) string {
	if passed {
		return "ok"
	}
	return failure
}

// BuildPathChecks verifies the state and log directories are writable.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	dirs := [][2]string{{"State", cfg.Paths.StateDir}, {"Logs", cfg.Paths.LogDir}}
	lines := make([]api.StatusLine, len(dirs))
	for i, dir := range dirs {
		result := preflight.CheckDirectoryAccess(dir[0], dir[1])
		lines[i] = api.StatusLine{Label: dir[0], Severity: severityFor(result.Passed, "error"), Detail: result.Detail}
	}
	return lines
}

// BuildDependencySummary rolls dependency checks up into one status line:
// error when a required binary is missing, warn for optional ones.
func BuildDependencySummary(deps []ipc.DependencyStatus) api.DependencySummary {
	if len(deps) == 0 {
		return api.DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}
	summary := api.DependencySummary{Total: len(deps)}
	for _, dep := range deps {
		switch {
		case dep.Available:
			summary.Available++
		case dep.Optional:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	switch {
	case summary.MissingRequired > 0:
		summary.Severity = "error"
	case summary.MissingOptional > 0:
		summary.Severity = "warn"
	default:
		summary.Severity = "ok"
		return summary
	}
	summary.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", summary.MissingRequired, summary.MissingOptional)
	return summary
}
