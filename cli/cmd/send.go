/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <session-id> <text>...",
	Short: "Send a chat message into an active session.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]string{"text": strings.Join(args[1:], " ")}
		if err := callAPI("POST", sessionPath(args[0], "messages"), body, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// rateCmd represents the rate command
var rateCmd = &cobra.Command{
	Use:   "rate <session-id> <score>",
	Short: "Rate a finished session from 1 to 5.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var score int
		if _, err := fmt.Sscanf(args[1], "%d", &score); err != nil {
			fmt.Fprintf(os.Stderr, "Error: score must be a number\n")
			os.Exit(1)
		}
		body := map[string]interface{}{"score": score, "comment": rateComment}
		if err := callAPI("POST", sessionPath(args[0], "rating"), body, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("thanks for the feedback")
	},
}

var rateComment string

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(rateCmd)
	rateCmd.Flags().StringVar(&rateComment, "comment", "", "optional free-form comment")
}
