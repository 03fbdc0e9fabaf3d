package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overlaycast/internal/ipc"
)

func newOverlaysCommand(ctx *commandContext) *cobra.Command {
	overlaysCmd := &cobra.Command{
		Use:     "overlays",
		Aliases: []string{"overlay"},
		Short:   "Inspect overlay state",
	}

	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured overlays and what they show",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Overlays()
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Overlays) == 0 {
					fmt.Fprintln(out, "No overlays configured")
					return nil
				}
				fmt.Fprint(out, renderTable(overlayHeaders, buildOverlayRows(resp.Overlays), overlayAligns))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show the full state of one overlay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Describe(args[0])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd, resp.Overlay)
				}
				for _, line := range describeOverlay(resp.Overlay) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	overlaysCmd.AddCommand(listCmd, showCmd)
	overlaysCmd.RunE = listCmd.RunE
	overlaysCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	return overlaysCmd
}
