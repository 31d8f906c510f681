// Package commands implements the CLI commands for the hyperspace daemon.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hyperspaced",
	Short: "Hyperspace - coordination service for the table store",
	Long: `Hyperspace is the coordination service of the table store: a
hierarchical namespace with session leases, advisory locks, extended
attribute storage and ordered event notifications, backed by a local
directory tree.

Use "hyperspaced [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dumpLogCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
