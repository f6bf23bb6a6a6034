/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	requestModality string
	requestRate     float64
)

// requestCmd represents the request command
var requestCmd = &cobra.Command{
	Use:   "request <customer-id> <advisor-id>",
	Short: "Request a consultation session with an advisor.",
	Long: `Requests a consultation session. If the advisor is free the session
connects immediately; otherwise the customer is enqueued and the
returned session shows its queue state.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]interface{}{
			"customer_id":  args[0],
			"advisor_id":   args[1],
			"modality":     requestModality,
			"rate_per_min": requestRate,
		}
		var view map[string]interface{}
		if err := callAPI("POST", "/sessions", body, &view); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(view)
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVar(&requestModality, "modality", "chat", "session modality (chat|call)")
	requestCmd.Flags().Float64Var(&requestRate, "rate", 10, "advisor rate per minute")
}
