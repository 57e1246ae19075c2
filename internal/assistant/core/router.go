package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/internal/assistant/telemetry"
)

// Router runs the tool loop for one chat message: plan, act, observe,
// conclude. The iteration cap is enforced here, never delegated to the
// model, and every tool failure is absorbed as an observation.
type Router struct {
	config      *config.Config
	llmProvider LLMProvider
	planner     *Planner
	tools       []Tool
	toolsByName map[string]Tool
	metrics     *telemetry.Metrics
	logger      *log.Logger
}

// NewRouter creates a router over the given tool set.
func NewRouter(cfg *config.Config, llmProvider LLMProvider, planner *Planner, tools []Tool, metrics *telemetry.Metrics) *Router {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Router{
		config:      cfg,
		llmProvider: llmProvider,
		planner:     planner,
		tools:       tools,
		toolsByName: byName,
		metrics:     metrics,
		logger:      log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
	}
}

// decision is the routing model's per-turn output.
type decision struct {
	Action string `json:"action"` // tool or final
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Answer string `json:"answer"`
}

// Answer runs the full pipeline for one message and always returns a
// usable Answer, aborted or not.
func (r *Router) Answer(ctx context.Context, message string, history []HistoryTurn) Answer {
	start := time.Now()
	toolNames := ToolNames(r.tools)

	state := StatePlanning
	plan := r.planner.Plan(ctx, message, history, toolNames)

	cap := plan.MaxToolCalls
	if max := r.config.Agent.MaxToolCalls; max > 0 && cap > max {
		cap = max
	}
	if cap <= 0 {
		cap = 1
	}

	var (
		observations []Observation
		tokensUsed   int64
		cost         float64
		finalText    string
	)

	for {
		// Cancellation is honored between iterations, never mid-tool.
		if err := ctx.Err(); err != nil {
			r.logger.Printf("run cancelled after %d tool call(s): %v", len(observations), err)
			state = StateAborted
			break
		}

		remaining := cap - len(observations)
		state = StateActing

		d, inTok, outTok, err := r.decide(ctx, message, plan, history, observations, toolNames, remaining)
		tokensUsed += inTok + outTok
		cost += r.llmProvider.CalculateCost(inTok, outTok, r.config.LLM.Routing.Chat)
		if err != nil {
			r.logger.Printf("routing decision failed: %v", err)
			state = StateAborted
			break
		}

		if d.Action == "final" && strings.TrimSpace(d.Answer) != "" {
			finalText = strings.TrimSpace(d.Answer)
			state = StateConcluded
			break
		}

		if remaining <= 0 {
			// Model wanted another call past the cap.
			r.logger.Printf("iteration cap %d reached, aborting loop", cap)
			state = StateAborted
			break
		}

		state = StateObserving
		observations = append(observations, r.invoke(ctx, d, observations))
	}

	if finalText == "" {
		text, synthTokens, synthCost := r.synthesize(ctx, message, plan, observations, state == StateAborted)
		tokensUsed += synthTokens
		cost += synthCost
		finalText = text
	}

	duration := time.Since(start)
	r.metrics.RequestsTotal.WithLabelValues(string(state)).Inc()
	r.metrics.RequestDuration.Observe(duration.Seconds())
	r.metrics.IterationsPerRequest.Observe(float64(len(observations)))
	if state == StateAborted {
		r.metrics.AbortedRunsTotal.Inc()
	}
	r.logger.Printf("run finished: state=%s iterations=%d tokens=%d cost=%.4f in %v", state, len(observations), tokensUsed, cost, duration)

	return Answer{
		Text:         finalText,
		State:        state,
		Plan:         plan,
		Observations: observations,
		Iterations:   len(observations),
		TokensUsed:   tokensUsed,
		Cost:         cost,
		Duration:     duration,
	}
}

func (r *Router) decide(ctx context.Context, message string, plan QueryPlan, history []HistoryTurn, observations []Observation, toolNames []string, remaining int) (decision, int64, int64, error) {
	prompt := createDecisionPrompt(message, plan, history, observations, toolNames, remaining)
	model := r.config.LLM.Routing.Chat

	response, inTok, outTok, err := r.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  1000,
	})
	if err != nil {
		return decision{}, inTok, outTok, err
	}
	r.metrics.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(inTok))
	r.metrics.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(outTok))

	var d decision
	if err := json.Unmarshal([]byte(extractFirstJSON(response)), &d); err != nil {
		return decision{}, inTok, outTok, fmt.Errorf("unparseable routing decision: %w", err)
	}
	return d, inTok, outTok, nil
}

// invoke runs one tool call and returns the observation, error or not.
func (r *Router) invoke(ctx context.Context, d decision, prior []Observation) Observation {
	start := time.Now()

	if d.Tool == "" {
		return Observation{Tool: "unknown", Input: d.Input, Output: "The routing decision named no tool.", IsError: true}
	}
	tool, ok := r.toolsByName[d.Tool]
	if !ok {
		r.metrics.ToolCallsTotal.WithLabelValues(d.Tool, "error").Inc()
		return Observation{Tool: d.Tool, Input: d.Input, Output: fmt.Sprintf("Tool %q does not exist.", d.Tool), IsError: true}
	}
	for _, obs := range prior {
		if obs.Tool == d.Tool && obs.Input == d.Input {
			return Observation{Tool: d.Tool, Input: d.Input, Output: "This exact call was already made; its result is above.", IsError: true}
		}
	}

	toolCtx := ctx
	if r.config.Agent.ToolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, r.config.Agent.ToolTimeout)
		defer cancel()
	}

	output, err := tool.Run(toolCtx, d.Input)
	r.metrics.ObserveTool(d.Tool, start, err)
	if err != nil {
		r.logger.Printf("tool %s failed: %v", d.Tool, err)
		return Observation{
			Tool:     d.Tool,
			Input:    d.Input,
			Output:   fmt.Sprintf("The tool failed: %v. Work with other results or a different tool.", err),
			IsError:  true,
			Duration: time.Since(start),
		}
	}
	return Observation{Tool: d.Tool, Input: d.Input, Output: output, Duration: time.Since(start)}
}

// synthesize produces the final text when the loop ended without one.
// If the model cannot help anymore, the deterministic fallback answer
// is used; a run never ends with empty text.
func (r *Router) synthesize(ctx context.Context, message string, plan QueryPlan, observations []Observation, aborted bool) (string, int64, float64) {
	if ctx.Err() == nil {
		prompt := createSynthesisPrompt(message, plan, observations, aborted)
		model := r.config.LLM.Routing.Chat
		response, inTok, outTok, err := r.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
			"temperature": 0.3,
			"max_tokens":  1500,
		})
		if err == nil && strings.TrimSpace(response) != "" {
			r.metrics.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(inTok))
			r.metrics.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(outTok))
			return strings.TrimSpace(response), inTok + outTok, r.llmProvider.CalculateCost(inTok, outTok, model)
		}
		if err != nil {
			r.logger.Printf("synthesis failed, using deterministic answer: %v", err)
		}
	}
	return fallbackAnswer(plan, observations), 0, 0
}

// fallbackAnswer assembles a best-effort reply from observations alone.
func fallbackAnswer(plan QueryPlan, observations []Observation) string {
	var succeeded []Observation
	for _, obs := range observations {
		if !obs.IsError {
			succeeded = append(succeeded, obs)
		}
	}

	if len(succeeded) == 0 {
		if plan.QueryType == QuerySimpleCheck {
			return "I could not verify this against the integration catalog right now. No matching integration could be confirmed; as a workaround, most services can be reached with the HTTP piece or a webhook."
		}
		return "I could not complete the research for this question right now. Please try again, or rephrase with the specific integration or error involved."
	}

	var b strings.Builder
	b.WriteString("Here is what I found:\n\n")
	for _, obs := range succeeded {
		output := obs.Output
		if len(output) > 1200 {
			output = output[:1200] + "..."
		}
		b.WriteString(output)
		b.WriteString("\n")
	}
	if len(succeeded) < len(observations) {
		b.WriteString("\nSome lookups failed along the way, so parts of this may be incomplete.")
	}
	return strings.TrimSpace(b.String())
}
