// Package cmd contains the licensectl commands.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	backendURL     string
	backendTimeout time.Duration
	redisAddr      string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "licensectl",
	Short: "LicenseOps console tooling",
	Long: `licensectl talks to the licensing backend and the console job queue.

Examples:
  # List the report types
  licensectl reports list

  # Export the Delhi devices report as CSV
  licensectl reports export --type devices --filter region=DELHI --format csv --out devices.csv

  # Prime the report cache
  licensectl jobs trigger warmup`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", envOr("BACKEND_URL", "http://127.0.0.1:8081/api"), "licensing backend base URL")
	rootCmd.PersistentFlags().DurationVar(&backendTimeout, "timeout", 30*time.Second, "backend request timeout")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address of the job queue")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}
