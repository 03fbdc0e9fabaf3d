package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"overlaycast/internal/api"
	"overlaycast/internal/daemonctl"
	"overlaycast/internal/ipc"
)

const (
	startTimeout = 10 * time.Second
	stopTimeout  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the overlaycast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, opts, err := launchTarget(ctx)
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, opts, startTimeout)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			printStartState(stdout, result)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the overlaycast daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopTimeout)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Disconnecting from director...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, director and overlay status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "System Status", colorize)
			for _, line := range statusResp.SystemChecks {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Dependencies", colorize)
			for _, line := range dependencyLines(statusResp.Dependencies, statusResp.DependencySummary, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Paths", colorize)
			for _, line := range statusResp.PathChecks {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			printSection(stdout, "Overlays", colorize)
			if !statusResp.Running {
				fmt.Fprintln(stdout, "Daemon not running")
			} else if len(statusResp.Overlays) == 0 {
				fmt.Fprintln(stdout, "No overlays configured")
			} else {
				fmt.Fprint(stdout, renderTable(overlayHeaders, buildOverlayRows(statusResp.Overlays), overlayAligns))
				fmt.Fprintln(stdout)
			}

			if len(statusResp.JournalStats) > 0 {
				fmt.Fprintln(stdout)
				printSection(stdout, "Journal", colorize)
				fmt.Fprint(stdout, renderTable(
					[]string{"Channel", "Total", "Failed", "Last"},
					buildJournalStatsRows(statusResp.JournalStats),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				))
				fmt.Fprintln(stdout)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the overlaycast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, opts, err := launchTarget(ctx)
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, opts, stopTimeout, startTimeout)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func printStartState(stdout io.Writer, result daemonctl.StartResult) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(stdout, "Daemon started")
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(stdout, "Daemon already running")
	case daemonctl.StartStateRequested:
		if strings.TrimSpace(result.Message) != "" {
			fmt.Fprintln(stdout, result.Message)
			return
		}
		fmt.Fprintln(stdout, "Start request sent")
	}
}

// dependencyLines renders the summary, one line per dependency, and a
// trailing line naming whatever is missing.
func dependencyLines(deps []ipc.DependencyStatus, summary api.DependencySummary, colorize bool) []string {
	lines := []string{renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize)}
	var missing []string
	for _, dep := range deps {
		kind, detail := dependencyState(dep)
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		if !dep.Available {
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) == 0 {
		return lines
	}
	note := strings.Join(missing, ", ") + " (see README.md for install steps)"
	return append(lines, renderStatusLine("Missing dependencies", statusWarn, note, colorize))
}

func dependencyState(dep ipc.DependencyStatus) (statusKind, string) {
	switch {
	case dep.Available && dep.Command != "":
		return statusOK, "Ready (command: " + dep.Command + ")"
	case dep.Available:
		return statusOK, "Ready"
	}
	if detail := strings.TrimSpace(dep.Detail); detail != "" {
		return statusKindFromSeverity(dep.Severity), detail
	}
	return statusKindFromSeverity(dep.Severity), "not available"
}

// launchTarget resolves the binary to re-exec as the daemon and the flags it
// should inherit from this invocation.
func launchTarget(ctx *commandContext) (string, daemonctl.LaunchOptions, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", daemonctl.LaunchOptions{}, fmt.Errorf("resolve executable: %w", err)
	}
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configFlagValue()}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = strings.TrimSpace(*ctx.logLevelFlag)
	}
	return exe, opts, nil
}
