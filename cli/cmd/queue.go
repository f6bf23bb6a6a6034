/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue <advisor-id>",
	Short: "Show the waiting queue of an advisor.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out map[string]interface{}
		if err := callAPI("GET", "/queues/"+args[0], nil, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	},
}

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is reachable.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var out map[string]interface{}
		if err := callAPI("GET", "/healthz", nil, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(healthCmd)
}
