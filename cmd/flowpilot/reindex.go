package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/core"
	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
)

func reindexCmd() *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the documentation vector index from a JSON export",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)

			pieces, err := kb.ReadExport(exportPath)
			if err != nil {
				return err
			}
			docs := vector.DocumentsFromExport(pieces)
			if len(docs) == 0 {
				return fmt.Errorf("export produced no documents")
			}

			llmProvider, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}

			builder := vector.NewBuilder(llmProvider, cfg.LLM.Embedding.Model, cfg.LLM.Embedding.BatchSize)
			if err := builder.Build(cmd.Context(), docs, cfg.Vector.Path); err != nil {
				return err
			}
			fmt.Printf("indexed %d documents into %s\n", len(docs), cfg.Vector.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "pieces_export.json", "path to the pieces JSON export")
	return cmd
}
