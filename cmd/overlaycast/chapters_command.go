package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"overlaycast/internal/ipc"
	"overlaycast/internal/protocol"
)

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	var next, previous bool
	var jump string

	cmd := &cobra.Command{
		Use:   "chapters OVERLAY",
		Short: "List or navigate chapters of the media an overlay is playing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, payload, err := chapterAction(next, previous, jump)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if eventType != "" {
					if _, err := client.Send(ipc.SendRequest{Overlay: args[0], Type: eventType, Payload: payload}); err != nil {
						return err
					}
				}
				resp, err := client.Describe(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				state := resp.Overlay
				if len(state.Chapters) == 0 {
					fmt.Fprintf(out, "%s has no chapters\n", state.Name)
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"", "#", "ID", "Start", "Label"},
					buildChapterRows(state.Chapters, state.Chapter),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&next, "next", false, "Seek to the next chapter")
	cmd.Flags().BoolVar(&previous, "previous", false, "Seek to the previous chapter")
	cmd.Flags().StringVar(&jump, "jump", "", "Seek to the chapter with this id")
	return cmd
}

func chapterAction(next, previous bool, jump string) (string, json.RawMessage, error) {
	jump = strings.TrimSpace(jump)
	count := 0
	for _, set := range []bool{next, previous, jump != ""} {
		if set {
			count++
		}
	}
	if count > 1 {
		return "", nil, errors.New("use only one of --next, --previous or --jump")
	}
	switch {
	case next:
		return protocol.TypeChapterNext, nil, nil
	case previous:
		return protocol.TypeChapterPrevious, nil, nil
	case jump != "":
		payload, err := json.Marshal(protocol.ChapterJumpPayload{ID: jump})
		if err != nil {
			return "", nil, err
		}
		return protocol.TypeChapterJump, payload, nil
	}
	return "", nil, nil
}
