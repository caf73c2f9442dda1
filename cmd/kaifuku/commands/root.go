// Package commands defines the kaifuku CLI
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "kaifuku",
	Short: "Health monitoring and auto-repair engine",
	Long: `Kaifuku monitors application component health, runs diagnostics,
and applies repairs automatically when components degrade.

The engine tracks per-component performance scores, derives health
states and trends, and drives a three-tier schedule: frequent health
checks with automatic repair, periodic optimization passes, and a slow
learning pass that adapts diagnostic thresholds from repair outcomes.`,
	Version: Version,
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("api-url", "http://127.0.0.1:8390", "API server URL")
}
