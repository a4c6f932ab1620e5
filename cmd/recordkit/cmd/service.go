/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordkit/pkg/config"
)

const serviceName = "recordkit.service"

// unitPath is where the systemd unit is written
var unitPath = "/etc/systemd/system/" + serviceName

var noConfig = map[string]string{annotationNoConfig: "true"}

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the recordkit server as a systemd service",
	Long: `Manage the recordkit conversion server as a systemd service. The unit
runs 'recordkit serve' with the chosen configuration and restarts on failure.`,
}

// installServiceCmd represents the service install command
var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install recordkit as a systemd service",
	Long: `Install the recordkit server as a systemd service.

This will:
- Create or use existing configuration
- Generate systemd unit file
- Enable and optionally start the service

Examples:
  recordkit service install
  recordkit service install --config /etc/recordkit/config.yaml --user recordkit`,
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		user, _ := cmd.Flags().GetString("user")
		binary, _ := cmd.Flags().GetString("binary")
		startNow, _ := cmd.Flags().GetBool("start")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		if os.Geteuid() != 0 {
			return fmt.Errorf("service install requires root privileges (run with: sudo recordkit service install)")
		}

		cmd.Printf("Installing recordkit systemd service...\n")
		cfg, err := loadOrBootstrap(cmd, configPath)
		if err != nil {
			return err
		}

		unit := renderUnit(cfg, configPath, user, binary)
		if err := os.WriteFile(unitPath, []byte(unit), 0600); err != nil {
			return fmt.Errorf("failed to write systemd unit: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		if err := runSystemctlCommand("enable", serviceName); err != nil {
			return fmt.Errorf("failed to enable service: %w", err)
		}
		cmd.Printf("Service enabled\n")

		if startNow {
			if err := runSystemctlCommand("start", serviceName); err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
			cmd.Printf("Service started\n")
		}

		cmd.Printf("\nService: %s\n", serviceName)
		cmd.Printf("Config: %s\n", configPath)
		cmd.Printf("Layouts: %s\n", cfg.Layout.Dir)
		cmd.Printf("Port: %d\n", cfg.Server.Port)
		cmd.Printf("To view logs: sudo journalctl -u %s -f\n", serviceName)
		return nil
	},
}

// systemctlCmd builds a service subcommand that runs one systemctl action
func systemctlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:         action,
		Short:       short,
		Annotations: noConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemctlCommand(action, serviceName)
		},
	}
}

// logsCmd represents the service logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recordkit service logs",
	Long: `Show recordkit service logs using journalctl.

Examples:
  recordkit service logs
  recordkit service logs -f  # Follow logs`,
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")
		return runCommand("journalctl", journalArgs(follow, lines)...)
	},
}

// uninstallCmd represents the service uninstall command
var uninstallCmd = &cobra.Command{
	Use:         "uninstall",
	Short:       "Uninstall the recordkit service",
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() != 0 {
			return fmt.Errorf("service uninstall requires root privileges (run with: sudo recordkit service uninstall)")
		}

		_ = runSystemctlCommand("stop", serviceName)
		if err := runSystemctlCommand("disable", serviceName); err != nil {
			cmd.Printf("Warning: could not disable service: %v\n", err)
		}
		if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}

		cmd.Printf("recordkit service uninstalled\n")
		cmd.Printf("Note: configuration, layouts and archive data were not removed\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installServiceCmd)
	serviceCmd.AddCommand(systemctlCmd("start", "Start the recordkit service"))
	serviceCmd.AddCommand(systemctlCmd("stop", "Stop the recordkit service"))
	serviceCmd.AddCommand(systemctlCmd("restart", "Restart the recordkit service"))
	serviceCmd.AddCommand(systemctlCmd("status", "Show recordkit service status"))
	serviceCmd.AddCommand(logsCmd)
	serviceCmd.AddCommand(uninstallCmd)

	installServiceCmd.Flags().String("user", "recordkit", "User to run the service as")
	installServiceCmd.Flags().String("binary", "/usr/local/bin/recordkit", "Path to the recordkit binary")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}

// loadOrBootstrap loads the configuration at configPath, creating it first
// when missing
func loadOrBootstrap(cmd *cobra.Command, configPath string) (*config.Config, error) {
	if !config.ConfigExists(configPath) {
		if _, _, err := initializeConfig(configPath, "", false); err != nil {
			return nil, err
		}
		cmd.Printf("Created new configuration at %s\n", configPath)
	}
	return config.LoadConfig(configPath)
}

// renderUnit builds the systemd unit running 'recordkit serve'
func renderUnit(cfg *config.Config, configPath, user, binary string) string {
	writable := []string{filepath.Dir(configPath)}
	if cfg.Archive.DataDir != "" {
		writable = append(writable, cfg.Archive.DataDir)
	}

	var rw strings.Builder
	for _, p := range writable {
		fmt.Fprintf(&rw, "ReadWritePaths=%s\n", p)
	}

	return fmt.Sprintf(`[Unit]
Description=recordkit conversion server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadOnlyPaths=%s
%s
[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, cfg.Layout.Dir, rw.String())
}

func journalArgs(follow bool, lines int) []string {
	args := []string{"-u", serviceName}
	if follow {
		args = append(args, "-f")
	}
	if lines > 0 {
		args = append(args, fmt.Sprintf("-n%d", lines))
	}
	return args
}

// runSystemctlCommand runs a systemctl command
func runSystemctlCommand(args ...string) error {
	return runCommand("systemctl", args...)
}

// runCommand runs a system command and returns its error
func runCommand(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
