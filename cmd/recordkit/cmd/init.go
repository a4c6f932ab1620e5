/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a recordkit configuration",
	Long: `Create a recordkit configuration file with a generated API key.

This command will:
- Write the configuration file with secure permissions
- Create the layout directory
- Generate the API key used by 'recordkit serve'

Examples:
  recordkit init
  recordkit init --config ./recordkit.yaml --layout-dir ./layouts`,
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		layoutDir, _ := cmd.Flags().GetString("layout-dir")
		force, _ := cmd.Flags().GetBool("force")
		printKey, _ := cmd.Flags().GetBool("print-key")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		cfg, created, err := initializeConfig(configPath, layoutDir, force)
		if err != nil {
			return err
		}
		if !created {
			cmd.Printf("Configuration already exists at %s. Use --force to recreate it.\n", configPath)
			return nil
		}

		cmd.Printf("Configuration created at %s\n", configPath)
		cmd.Printf("Layout directory: %s\n", cfg.Layout.Dir)
		if printKey {
			cmd.Printf("API key: %s\n", cfg.Server.APIKey)
		}
		cmd.Printf("\nYou can now start the server with:\n")
		cmd.Printf("  recordkit serve --config %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("layout-dir", "", "Layout directory (default: ./layouts next to the config)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")
}

// initializeConfig bootstraps the configuration at configPath. It reports
// false when a configuration exists and force is not set.
func initializeConfig(configPath, layoutDir string, force bool) (*config.Config, bool, error) {
	if config.ConfigExists(configPath) && !force {
		return nil, false, nil
	}
	cfg, err := config.BootstrapConfig(configPath, layoutDir)
	if err != nil {
		return nil, false, err
	}

	dir := cfg.Layout.Dir
	if loaded, err := config.LoadConfig(configPath); err == nil {
		dir = loaded.Layout.Dir
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, false, fmt.Errorf("failed to create layout directory: %w", err)
	}
	return cfg, true, nil
}
