/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var presenceOffline bool

// presenceCmd represents the presence command
var presenceCmd = &cobra.Command{
	Use:   "presence <advisor-id>",
	Short: "Mark an advisor online or offline.",
	Long: `Marks an advisor online or offline on the server. Taking an advisor
offline drops everyone waiting in that advisor's queue.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body := map[string]interface{}{"online": !presenceOffline}
		var out map[string]interface{}
		if err := callAPI("PUT", "/advisors/"+args[0]+"/presence", body, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(presenceCmd)
	presenceCmd.Flags().BoolVar(&presenceOffline, "offline", false, "mark the advisor offline instead of online")
}
