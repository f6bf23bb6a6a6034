/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List live sessions or show one session.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/sessions"
		if len(args) == 1 {
			path = sessionPath(args[0])
		}
		var out map[string]interface{}
		if err := callAPI("GET", path, nil, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	},
}

// summaryCmd represents the summary command
var summaryCmd = &cobra.Command{
	Use:   "summary <session-id>",
	Short: "Show the billing summary of a finished session.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out map[string]interface{}
		if err := callAPI("GET", sessionPath(args[0], "summary"), nil, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	},
}

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session that has not connected yet.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := callAPI("POST", sessionPath(args[0], "cancel"), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("cancelled")
	},
}

func pollSummary(sessionID string, out interface{}) error {
	var lastErr error
	for i := 0; i < 10; i++ {
		if lastErr = callAPI("GET", sessionPath(sessionID, "summary"), nil, out); lastErr == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return lastErr
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(cancelCmd)
}
