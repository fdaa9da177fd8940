package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDispatchCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <event-type> [json-payload]",
		Short: "Dispatch an event and wait for the report",
		Example: `  webhookctl dispatch checkout.completed '{"order_id":"ORD-1"}'
  webhookctl dispatch checkout.abandoned`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if len(args) == 2 {
				payload = json.RawMessage(args[1])
				if !json.Valid(payload) {
					return errors.New("payload must be valid JSON")
				}
			}

			report, err := client().Dispatch(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Event %s (%s): %d attempted, %d succeeded, %d failed\n",
				report.EventID, report.EventType, report.Attempted, report.Succeeded, report.Failed)
			for _, a := range report.PerSubscriptionOutcomes {
				printAttempt(out, a)
			}
			return nil
		},
	}
}
