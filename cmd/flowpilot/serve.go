package main

import (
	"github.com/spf13/cobra"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			return server.Run(cfg)
		},
	}
}
