/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	serverAddress string
	httpClient    *http.Client
)

const serverAddressKey = "server_address"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "consultctl",
	Short: "Operate a consult-engine server from the command line.",
	Long: `consultctl talks to a running consult-engine server over its HTTP API.
It can request, inspect, and end consultation sessions, watch advisor
queues, and submit post-session ratings.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.consultctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverAddress, "server", "", "consult-engine server address")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".consultctl")
	}

	viper.SetDefault(serverAddressKey, "http://localhost:8080")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if serverAddress == "" {
		serverAddress = viper.GetString(serverAddressKey)
	}
}

// callAPI issues one request against the server and decodes the JSON
// reply into out (skipped when out is nil). Non-2xx replies are
// returned as errors carrying the problem detail.
func callAPI(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverAddress+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var problem struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &problem) == nil && problem.Title != "" {
			return fmt.Errorf("%s: %s", problem.Title, problem.Detail)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func printJSON(v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println(string(encoded))
}

func sessionPath(id string, parts ...string) string {
	p := "/sessions/" + id
	for _, part := range parts {
		p += "/" + part
	}
	return p
}
