package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Pronoia CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pronoia",
		Short: "Pronoia - account registration and token authentication",
		Long: `Pronoia registers user accounts, authenticates them by email and
password, and issues signed bearer tokens that it can later validate.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/pronoia/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
