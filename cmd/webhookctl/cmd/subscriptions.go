package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

func newSubscriptionsCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Manage webhook subscriptions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := client().ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			return printSubscriptions(cmd.OutOrStdout(), subs)
		},
	})

	var (
		name   string
		url    string
		events []string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := client().AddSubscription(cmd.Context(), domain.CreateSubscriptionRequest{
				Name:             name,
				EndpointURL:      url,
				SubscribedEvents: events,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s created for %s\n", sub.ID, sub.EndpointURL)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&url, "url", "", "endpoint URL")
	add.Flags().StringSliceVar(&events, "events", nil, "event types, comma separated")
	add.MarkFlagRequired("name")
	add.MarkFlagRequired("url")
	add.MarkFlagRequired("events")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().RemoveSubscription(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s removed\n", args[0])
			return nil
		},
	})

	for _, active := range []bool{true, false} {
		verb := "enable"
		if !active {
			verb = "disable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   verb + " <id>",
			Short: strings.ToUpper(verb[:1]) + verb[1:] + " a subscription",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sub, err := client().SetActive(cmd.Context(), args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s %sd\n", sub.ID, verb)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test <id>",
		Short: "Send a webhook.test event to one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attempt, err := client().TestSubscription(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAttempt(cmd.OutOrStdout(), attempt)
			return nil
		},
	})

	return cmd
}

func printSubscriptions(w io.Writer, subs []domain.Subscription) error {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No subscriptions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURL\tEVENTS\tACTIVE\tLAST")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			s.ID, s.Name, s.EndpointURL, strings.Join(s.SubscribedEvents, ","), s.Active, s.LastOutcome)
	}
	return tw.Flush()
}

func printAttempt(w io.Writer, a domain.DeliveryAttempt) {
	status := "-"
	if a.HTTPStatusCode != nil {
		status = fmt.Sprint(*a.HTTPStatusCode)
	}
	line := fmt.Sprintf("%s  %-7s  status=%s  %dms", a.SubscriptionID, a.Outcome, status, a.Duration().Milliseconds())
	if a.ErrorDetail != "" {
		line += "  error=" + a.ErrorDetail
	}
	fmt.Fprintln(w, line)
}
