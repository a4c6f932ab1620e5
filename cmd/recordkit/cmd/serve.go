/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversion REST API server",
	Long: `Start the recordkit REST API server. Layouts are served from layout.dir and
every route under /api/v1 requires the X-API-Key header.

Examples:
  recordkit serve
  recordkit serve --config ./recordkit.yaml --port 9000
  recordkit serve --api-key=mysecretkey --no-archive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := container.Config()
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cmd.Flags().Changed("api-key") {
			cfg.Server.APIKey, _ = cmd.Flags().GetString("api-key")
		}
		if cmd.Flags().Changed("layout-dir") {
			cfg.Layout.Dir, _ = cmd.Flags().GetString("layout-dir")
		}
		noArchive, _ := cmd.Flags().GetBool("no-archive")

		if cfg.Server.APIKey == "" || cfg.Server.APIKey == "auto" {
			return fmt.Errorf("server.api_key is not set (run 'recordkit init' or pass --api-key)")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		deps, err := container.ServerDependencies(!noArchive)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Starting recordkit server on %s:%d\n", cfg.Server.Bind, cfg.Server.Port)
		cmd.Printf("Layout directory: %s\n", cfg.Layout.Dir)
		cmd.Printf("Metrics available at: http://%s:%d/metrics\n", cfg.Server.Bind, cfg.Server.Port)

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, container.ServerConfig(), deps)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	serveCmd.Flags().String("api-key", "", "API key for authentication (default: server.api_key)")
	serveCmd.Flags().String("layout-dir", "", "Layout directory (default: layout.dir)")
	serveCmd.Flags().Bool("no-archive", false, "Disable the archive endpoints")
}
