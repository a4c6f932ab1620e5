/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/config"
	"github.com/ssargent/recordkit/pkg/di"
)

// annotationNoConfig marks commands that run without a loaded configuration
const annotationNoConfig = "recordkit/no-config"

// container is built from the loaded configuration before each command runs
var container *di.Container

// SetContainer injects a prepared container. Commands then skip loading
// the configuration file.
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recordkit",
	Short: "recordkit - fixed and variable length record conversion",
	Long: `recordkit converts fixed-length and delimited record files to and from
structured records using declarative layout files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if container != nil || cmd.Annotations[annotationNoConfig] == "true" {
			return nil
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		container = di.NewContainer(cfg)
		container.SetLogOutput(cmd.ErrOrStderr())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		return container.Close()
	},
}

// loadConfig reads --config, or the default path. A missing default
// config falls back to built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
		if !config.ConfigExists(configPath) {
			return config.DefaultConfig(), nil
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
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
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (debug, info, warn, error)")
}
