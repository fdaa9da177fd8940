package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the webhookctl command tree.
func NewRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:   "webhookctl",
		Short: "CLI for the checkout webhook dispatcher",
		Long: `webhookctl manages webhook subscriptions and dispatches events
through the checkout-webhooks admin API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", "http://localhost:8080", "admin API base URL")

	client := func() *Client { return NewClient(server) }
	root.AddCommand(newSubscriptionsCmd(client), newDispatchCmd(client))
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
