package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "fre",
	Short: "fre - fact/rule/event engine runtime",
	Long: `fre evaluates rules against a layered fact database in response to events.

Rule sets are YAML files holding initial facts, rules and test scenarios.
Events queue up between ticks; each tick drains them, fires matching rules,
applies their fact modifications and dispatches their actions, then drains
the events the rules emitted, up to the configured cascade depth.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus FRE_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
