package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the SchoolHub admin CLI. Subcommands (auth, migrate, jobs, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "schoolhub",
	Short:         "SchoolHub admin CLI",
	Long:          "Administrative utilities for SchoolHub (schema migration, plans, schools, sweeps, dev tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
