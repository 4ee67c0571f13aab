package cmd

import (
	"context"
	"fmt"
	"os"

	"herald/core/config"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configFile string
)

// rootCmd is the base command for the herald CLI.
var rootCmd = &cobra.Command{
	Use:     "herald",
	Short:   "Herald background job dispatcher",
	Long:    "Herald runs email jobs on a single background worker with retries.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: herald.yaml in ., ./configs or /etc/herald)")
}

// Execute runs the root command with ctx, which is cancelled on SIGINT or
// SIGTERM.
func Execute(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
