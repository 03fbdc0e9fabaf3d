package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"overlaycast/internal/ipc"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var payloadFlag string
	var fields []string
	var eventID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "send OVERLAY TYPE",
		Short: "Inject an event into an overlay as if the director sent it",
		Long: `Inject an event into an overlay.

TYPE is one of show, hide, update, play, pause, seek, mute, unmute,
chapter-next, chapter-previous or chapter-jump. The payload is built from
--payload (a JSON object) with --field key=value pairs layered on top.
Field values that parse as JSON keep their type; anything else is a string.`,
		Example: `  overlaycast send lower-third show --field title="Jane Doe" --field subtitle=Keynote
  overlaycast send poster seek --field time=42.5
  overlaycast send poster hide`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(payloadFlag, fields)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Send(ipc.SendRequest{
					Overlay: args[0],
					Type:    args[1],
					ID:      eventID,
					Payload: payload,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Event %s applied to %s (channel %s)\n", resp.EventID, resp.Overlay.Name, resp.Channel)
				fmt.Fprintf(out, "Phase: %s, visible: %s\n", formatPhase(resp.Overlay.Phase), yesNo(resp.Overlay.Visible))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&payloadFlag, "payload", "p", "", "Event payload as a JSON object")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Payload field as key=value (repeatable)")
	cmd.Flags().StringVar(&eventID, "id", "", "Event id (generated when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}

// buildPayload merges the raw JSON object with key=value field overrides.
func buildPayload(raw string, fields []string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && len(fields) == 0 {
		return nil, nil
	}
	obj := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("parse --payload: %w", err)
		}
		if obj == nil {
			obj = map[string]any{}
		}
	}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q (expected key=value)", field)
		}
		obj[key] = fieldValue(value)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.New("encode payload")
	}
	return data, nil
}

func fieldValue(value string) any {
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		return decoded
	}
	return value
}
