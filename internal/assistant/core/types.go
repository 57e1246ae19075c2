// Package core implements the assistant pipeline: query planning, tool
// routing and answer synthesis.
package core

import (
	"context"
	"time"
)

// QueryType classifies what kind of help the user is asking for. The
// set is closed; anything a model invents outside it collapses to
// QueryExplanation.
type QueryType string

const (
	QuerySimpleCheck     QueryType = "simple_check"
	QueryFlowBuilding    QueryType = "flow_building"
	QueryExplanation     QueryType = "explanation"
	QueryTroubleshooting QueryType = "troubleshooting"
	QueryConfiguration   QueryType = "configuration"
)

// NormalizeQueryType collapses unknown classifications to the safe
// default rather than propagating model inventions downstream.
func NormalizeQueryType(s string) QueryType {
	switch QueryType(s) {
	case QuerySimpleCheck, QueryFlowBuilding, QueryExplanation, QueryTroubleshooting, QueryConfiguration:
		return QueryType(s)
	default:
		return QueryExplanation
	}
}

// QueryPlan is the planner's output: a bounded strategy for answering
// one user message.
type QueryPlan struct {
	Intent            string    `json:"intent"`
	QueryType         QueryType `json:"query_type"`
	ActionPlan        []string  `json:"action_plan"`
	RecommendedTools  []string  `json:"recommended_tools"`
	SearchQueries     []string  `json:"search_queries"`
	MaxToolCalls      int       `json:"max_tool_calls"`
	StoppingCondition string    `json:"stopping_condition"`
	FallbackStrategy  string    `json:"fallback_strategy"`
	Context           string    `json:"context,omitempty"`
	Fallback          bool      `json:"-"`
}

// Observation is one recorded tool outcome. Failures are observations
// too; the loop never sees a tool error as anything but text.
type Observation struct {
	Tool     string        `json:"tool"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	IsError  bool          `json:"is_error"`
	Duration time.Duration `json:"duration"`
}

// RouterState tracks the tool loop's lifecycle.
type RouterState string

const (
	StatePlanning  RouterState = "planning"
	StateActing    RouterState = "acting"
	StateObserving RouterState = "observing"
	StateConcluded RouterState = "concluded"
	StateAborted   RouterState = "aborted"
)

// Answer is the synthesized reply plus run accounting.
type Answer struct {
	Text         string        `json:"text"`
	State        RouterState   `json:"state"`
	Plan         QueryPlan     `json:"plan"`
	Observations []Observation `json:"observations"`
	Iterations   int           `json:"iterations"`
	TokensUsed   int64         `json:"tokens_used"`
	Cost         float64       `json:"cost"`
	Duration     time.Duration `json:"duration"`
}

// HistoryTurn is one prior exchange replayed into planning and routing.
type HistoryTurn struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Tool is a single capability the router can invoke. Run returns a
// textual observation; errors are absorbed by the caller, never fatal.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) (string, error)
}

// ModelInfo describes a configured model for cost accounting.
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// LLMProvider abstracts the language model backend.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}
