package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/kb"
)

func ingestCmd() *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the pieces knowledge base from a JSON export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)

			pieces, err := kb.ReadExport(exportPath)
			if err != nil {
				return err
			}
			if err := kb.BuildDatabase(cmd.Context(), cfg.Knowledge.Path, pieces); err != nil {
				return err
			}

			store, err := kb.Open(cfg.Knowledge.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			counts, err := store.EntityCounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d pieces, %d actions, %d triggers into %s\n",
				counts.Pieces, counts.Actions, counts.Triggers, cfg.Knowledge.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "pieces_export.json", "path to the pieces JSON export")
	return cmd
}
