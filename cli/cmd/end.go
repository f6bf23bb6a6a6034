/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// endCmd represents the end command
var endCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End an active session and print its summary.",
	Long: `Ends an active session. The server finalizes billing and produces a
summary; this command polls for it briefly and prints it when ready.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := callAPI("POST", sessionPath(args[0], "end"), nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		var summary map[string]interface{}
		if err := pollSummary(args[0], &summary); err != nil {
			fmt.Fprintf(os.Stderr, "Session ending, summary not ready yet: %v\n", err)
			return
		}
		printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(endCmd)
}
