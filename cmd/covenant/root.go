package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	logLevel     string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "covenant",
	Short: "Covenant - governance policy to enforceable rules",
	Long: `Covenant turns written governance, risk and compliance policy into
enforceable rules.

It extracts obligations (must, shall, should, required) from policy
documents, checks actions against them, records every decision in a
tamper-evident audit trail and exports the active rules as a structured
document or as generated Go validator source.

Configuration is read from --config (YAML) and COVENANT_* environment
variables. Without a config file the built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults when empty)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml, csv")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}
