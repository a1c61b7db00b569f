// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "repo-pulse",
	Short: "A CLI tool to snapshot GitHub repository activity.",
	Long: `repo-pulse collects a ranked snapshot of GitHub repositories together with
the number of commits each author made in the last 24 hours, and stores it
in ClickHouse. It can also serve the version of its Postgres database.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

// newLogger discards all logs unless --verbose is set, in which case it
// writes debug logs to standard error.
func newLogger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
