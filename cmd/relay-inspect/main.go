package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "relay-inspect"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Browser control bridge for AI coding agents",
	Long: `relay-inspect gives an AI coding agent hands on a real browser tab:
	- Script evaluation, console/network capture, and DOM queries over the browser's remote debugging protocol
	- A loopback annotation service that lets a human pin feedback directly on the page for the agent to pick up
	- Managed background processes (dev servers, watchers) with captured output`,
	Version: appVersion,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
