package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"overlaycast/internal/api"
	"overlaycast/internal/config"
	"overlaycast/internal/ipc"
)

const (
	followBatch   = 200
	followWaitIPC = time.Second
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var filter logFilter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines <= 0 {
				lines = followBatch
			}
			if src := newAPILogSource(cfg, filter); src != nil {
				err := printLogs(cmd.Context(), cmd.OutOrStdout(), src, lines, follow)
				if !errors.Is(err, errLogAPIUnavailable) {
					return err
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				src := &ipcLogSource{client: client, filter: filter}
				return printLogs(cmd.Context(), cmd.OutOrStdout(), src, lines, follow)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only logs from this component")
	cmd.Flags().StringVar(&filter.Channel, "channel", "", "Only logs for this channel")
	return cmd
}

// errLogAPIUnavailable means the HTTP API could not be reached and the
// caller should retry over the control socket.
var errLogAPIUnavailable = errors.New("log API unavailable")

type logFilter struct {
	Component string
	Channel   string
}

// logSource yields log events after cursor since. The first call (since 0,
// follow false) returns the most recent limit events; follow calls block
// until something newer arrives or the source's wait expires.
type logSource interface {
	fetch(ctx context.Context, since uint64, limit int, follow bool) ([]api.LogEvent, uint64, error)
}

func printLogs(ctx context.Context, w io.Writer, src logSource, lines int, follow bool) error {
	var cursor uint64
	printed := false
	limit := lines
	for first := true; ; first = false {
		events, next, err := src.fetch(ctx, cursor, limit, !first)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if printed && errors.Is(err, errLogAPIUnavailable) {
				return fmt.Errorf("log stream interrupted: %w", err)
			}
			return err
		}
		for _, evt := range events {
			fmt.Fprintln(w, formatAPILogEvent(evt))
			printed = true
		}
		cursor = max(cursor, next)
		limit = followBatch
		if !follow {
			if !printed {
				fmt.Fprintln(w, "No log entries available")
			}
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type ipcLogSource struct {
	client *ipc.Client
	filter logFilter
}

func (s *ipcLogSource) fetch(_ context.Context, since uint64, limit int, follow bool) ([]api.LogEvent, uint64, error) {
	resp, err := s.client.LogTail(ipc.LogTailRequest{
		Since:      since,
		Limit:      limit,
		Follow:     follow,
		WaitMillis: int(followWaitIPC / time.Millisecond),
		Component:  s.filter.Component,
		Channel:    s.filter.Channel,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("tail logs: %w", err)
	}
	return resp.Events, resp.Next, nil
}

// apiLogSource reads GET /api/logs on the daemon's HTTP API.
type apiLogSource struct {
	base   *url.URL
	token  string
	filter logFilter
	http   *http.Client
}

// newAPILogSource returns nil when the API is disabled or bound to an
// ephemeral port the CLI cannot discover.
func newAPILogSource(cfg *config.Config, filter logFilter) *apiLogSource {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	parsed, err := url.Parse(bind)
	if err != nil || parsed.Port() == "0" {
		return nil
	}
	return &apiLogSource{
		base:   &url.URL{Scheme: parsed.Scheme, Host: parsed.Host},
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		filter: filter,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *apiLogSource) query(since uint64, limit int, follow bool) url.Values {
	values := url.Values{"limit": {strconv.Itoa(limit)}}
	if follow {
		values.Set("follow", "1")
		values.Set("since", strconv.FormatUint(since, 10))
	} else {
		values.Set("tail", "1")
	}
	if s.filter.Component != "" {
		values.Set("component", s.filter.Component)
	}
	if s.filter.Channel != "" {
		values.Set("channel", s.filter.Channel)
	}
	return values
}

func (s *apiLogSource) fetch(ctx context.Context, since uint64, limit int, follow bool) ([]api.LogEvent, uint64, error) {
	endpoint := s.base.JoinPath("api", "logs")
	endpoint.RawQuery = s.query(since, limit, follow).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, 0, fmt.Errorf("%w: %w", errLogAPIUnavailable, err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, 0, fmt.Errorf("api logs returned status %d", resp.StatusCode)
	}
	var payload api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("decode log stream: %w", err)
	}
	return payload.Events, payload.Next, nil
}

func formatAPILogEvent(evt api.LogEvent) string {
	ts := evt.Timestamp
	if t := parseAPITime(evt.Timestamp); !t.IsZero() {
		ts = t.Local().Format("2006-01-02 15:04:05")
	}
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.Overlay, evt.Channel); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if evt.EventID != "" {
		line += fmt.Sprintf(" (event %s)", evt.EventID)
	}
	return line
}

func composeSubject(overlay, channel string) string {
	overlay = strings.TrimSpace(overlay)
	channel = strings.TrimSpace(channel)
	switch {
	case overlay != "" && channel != "" && overlay != channel:
		return fmt.Sprintf("%s (%s)", overlay, channel)
	case overlay != "":
		return overlay
	default:
		return channel
	}
}
