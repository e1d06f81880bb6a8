// Package main implements the vidaudit CLI for auditing test executions
// against their screen recordings.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

// errDeviationsFound distinguishes a completed run that found deviations
// (exit 1) from a run that failed outright (exit 2).
var errDeviationsFound = errors.New("deviations found")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errDeviationsFound) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vidaudit",
	Short: "Audit test executions against their video recordings",
	Long: `vidaudit correlates an agent's planning log with the video recording of the
test execution and reports which planned steps are actually visible on screen.

A run parses the planning log and the test output, extracts visual change
events from the recording, aligns planned steps against those events and
writes a deviation report in JSON and Markdown.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vidaudit %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(versionCmd)
}
