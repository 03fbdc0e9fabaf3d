package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overlaycast/internal/ipc"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var channel, eventType string
	var failed, asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recently handled events from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Events(ipc.EventsRequest{
					Channel:    channel,
					Type:       eventType,
					FailedOnly: failed,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Recorded", "Channel", "Type", "Event", "Source", "Took", "Result"},
					buildJournalRows(resp.Entries),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Only events for this channel")
	cmd.Flags().StringVar(&eventType, "type", "", "Only events of this type")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only events that failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
