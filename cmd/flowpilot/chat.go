package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/core"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/telemetry"
	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
	websearch "github.com/flowpilot-ai/flowpilot/tools/web_search"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask a single question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			message := strings.Join(args, " ")

			store, err := kb.Open(cfg.Knowledge.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			index, err := vector.Load(cfg.Vector.Path)
			if err != nil {
				return err
			}

			llmProvider, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}

			searcher, err := websearch.NewSearcher(websearch.Provider(cfg.WebSearch.Provider), websearch.Options{
				OpenAIAPIKey:     cfg.WebSearch.OpenAIAPIKey,
				OpenAIModel:      cfg.WebSearch.OpenAIModel,
				PerplexityAPIKey: cfg.WebSearch.PerplexityAPIKey,
				PerplexityModel:  cfg.WebSearch.PerplexityModel,
				Timeout:          cfg.WebSearch.Timeout,
			})
			if err != nil {
				return err
			}

			metrics := telemetry.Get()
			tools := core.NewTools(store, index, llmProvider, searcher, cfg.Vector.TopK)
			planner := core.NewPlanner(cfg, llmProvider, metrics)
			router := core.NewRouter(cfg, llmProvider, planner, tools, metrics)

			answer := router.Answer(cmd.Context(), message, nil)
			fmt.Println(answer.Text)
			fmt.Printf("\n[%s | %s | %d tool call(s) | %d tokens | $%.4f | %v]\n",
				answer.State, answer.Plan.QueryType, answer.Iterations, answer.TokensUsed, answer.Cost, answer.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
