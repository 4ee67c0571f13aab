package cmd

import (
	"errors"
	"fmt"
	"os"

	"herald/core/config"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringP("output", "o", "herald.yaml", "Path of the generated config file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader(configFile)
		if _, err := loader.Load(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		source := loader.File()
		if source == "" {
			source = "defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s).\n", source)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(output); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", output)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", output, err)
		}

		if err := config.Save(config.Default(), output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s.\n", output)
		return nil
	},
}
