package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "unlocks",
	Short: "Campaign unlock payments microservice",
	Long:  "A payments microservice that creates Razorpay orders for campaign unlocks and reconciles captured payments into user entitlements.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
