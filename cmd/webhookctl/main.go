package main

import (
	"os"

	"github.com/Priya8975/checkout-webhooks/cmd/webhookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
