package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flags struct {
	configFile string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "proxy <port>",
	Short: "Caching HTTP/1.0 forwarding proxy",
	Long: `Forward client requests to origin servers and cache small GET responses
in memory, evicting the least recently used ones first.

Settings come from the defaults, then --config, then PROXY_* environment variables.`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

// Execute runs the root command and exits with 1 on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "config file path")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
