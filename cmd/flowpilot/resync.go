package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/resync"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
)

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Check the knowledge base and vector index for drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)

			store, err := kb.Open(cfg.Knowledge.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			index, err := vector.Load(cfg.Vector.Path)
			if err != nil {
				return err
			}

			checker, err := resync.NewChecker(store, index, cfg.Resync.CronSpec)
			if err != nil {
				return err
			}
			report, err := checker.Check(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("knowledge base: %d pieces, %d actions, %d triggers\n", report.Pieces, report.Actions, report.Triggers)
			fmt.Printf("vector index:   %d chunks, %d distinct references\n", report.IndexChunks, report.IndexRefs)
			if report.Drifted() {
				fmt.Printf("DRIFT: %d reference(s) missing from the knowledge base:\n", len(report.MissingRefs))
				for _, ref := range report.MissingRefs {
					fmt.Printf("  - %s\n", ref)
				}
				os.Exit(1)
			}
			fmt.Println("in sync")
			return nil
		},
	}
}
