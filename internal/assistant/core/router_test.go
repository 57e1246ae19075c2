package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/flowpilot-ai/flowpilot/internal/assistant/telemetry"
)

type stubTool struct {
	name   string
	output string
	err    error
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name + " stub" }
func (s *stubTool) Run(ctx context.Context, input string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

func newTestRouter(llm *stubLLM, tools ...Tool) *Router {
	cfg := testConfig()
	planner := NewPlanner(cfg, llm, telemetry.Get())
	return NewRouter(cfg, llm, planner, tools, telemetry.Get())
}

const planResponse = `{"intent":"answer","query_type":"explanation","recommended_tools":["search_docs"],"search_queries":["q"],"max_tool_calls":3}`

func TestRouterImmediateFinal(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"final","answer":"Branches route a run down one path based on a condition."}`,
	}}
	router := newTestRouter(llm, &stubTool{name: "search_docs", output: "docs"})

	answer := router.Answer(context.Background(), "tell me about branch pieces in workflows", nil)
	if answer.State != StateConcluded {
		t.Fatalf("expected concluded, got %s", answer.State)
	}
	if answer.Iterations != 0 || len(answer.Observations) != 0 {
		t.Fatalf("expected no tool calls, got %+v", answer.Observations)
	}
	if !strings.Contains(answer.Text, "Branches route") {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
}

func TestRouterToolThenFinal(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"search_docs","input":"webhook docs"}`,
		`{"action":"final","answer":"Webhooks start a flow when an HTTP request arrives."}`,
	}}
	docs := &stubTool{name: "search_docs", output: "Webhook trigger documentation."}
	router := newTestRouter(llm, docs)

	answer := router.Answer(context.Background(), "describe webhook trigger behavior for flows", nil)
	if answer.State != StateConcluded {
		t.Fatalf("expected concluded, got %s", answer.State)
	}
	if docs.calls != 1 {
		t.Fatalf("expected one tool call, got %d", docs.calls)
	}
	if len(answer.Observations) != 1 {
		t.Fatalf("expected one observation, got %d", len(answer.Observations))
	}
	obs := answer.Observations[0]
	if obs.Tool != "search_docs" || obs.Input != "webhook docs" || obs.IsError {
		t.Fatalf("unexpected observation %+v", obs)
	}
	if obs.Output != "Webhook trigger documentation." {
		t.Fatalf("observation output not preserved: %q", obs.Output)
	}
}

func TestRouterObservationsStayInOrder(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"check_pieces","input":"slack"}`,
		`{"action":"tool","tool":"search_docs","input":"slack setup"}`,
		`{"action":"final","answer":"Slack exists; configure it with a bot token."}`,
	}}
	router := newTestRouter(llm,
		&stubTool{name: "check_pieces", output: "Slack exists."},
		&stubTool{name: "search_docs", output: "Setup docs."},
	)

	answer := router.Answer(context.Background(), "confirm slack support and the setup path", nil)
	if len(answer.Observations) != 2 {
		t.Fatalf("expected two observations, got %d", len(answer.Observations))
	}
	if answer.Observations[0].Tool != "check_pieces" || answer.Observations[1].Tool != "search_docs" {
		t.Fatalf("observations out of order: %+v", answer.Observations)
	}
}

func TestRouterToolFailureBecomesObservation(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"web_search","input":"zapier pricing"}`,
		`{"action":"final","answer":"I could not reach the web, but pricing is published on the vendor site."}`,
	}}
	broken := &stubTool{name: "web_search", err: fmt.Errorf("provider credential missing")}
	router := newTestRouter(llm, broken)

	answer := router.Answer(context.Background(), "look up current zapier pricing tiers", nil)
	if answer.State != StateConcluded {
		t.Fatalf("a tool failure must not abort the run, got %s", answer.State)
	}
	if len(answer.Observations) != 1 || !answer.Observations[0].IsError {
		t.Fatalf("expected one error observation, got %+v", answer.Observations)
	}
	if !strings.Contains(answer.Observations[0].Output, "provider credential missing") {
		t.Fatalf("error text should be preserved in the observation: %q", answer.Observations[0].Output)
	}
}

func TestRouterUnknownToolIsAbsorbed(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"launch_missiles","input":"now"}`,
		`{"action":"final","answer":"Done with what I had."}`,
	}}
	router := newTestRouter(llm, &stubTool{name: "search_docs", output: "docs"})

	answer := router.Answer(context.Background(), "summarize retry policies for actions", nil)
	if answer.State != StateConcluded {
		t.Fatalf("unknown tool must not abort the run, got %s", answer.State)
	}
	if len(answer.Observations) != 1 || !answer.Observations[0].IsError {
		t.Fatalf("expected one error observation, got %+v", answer.Observations)
	}
}

func TestRouterCapEnforcedByHarness(t *testing.T) {
	// The model keeps asking for tools; the loop must cut it off at the
	// configured cap and still produce an answer.
	toolDecision := `{"action":"tool","tool":"search_docs","input":"query %d"}`
	responses := []string{planResponse}
	for i := 0; i < 4; i++ {
		responses = append(responses, fmt.Sprintf(toolDecision, i))
	}
	llm := &stubLLM{responses: responses}
	docs := &stubTool{name: "search_docs", output: "A documentation passage."}
	router := newTestRouter(llm, docs)

	answer := router.Answer(context.Background(), "exhaustively research every connector option", nil)
	if answer.State != StateAborted {
		t.Fatalf("expected aborted at the cap, got %s", answer.State)
	}
	if answer.Iterations != 3 {
		t.Fatalf("expected exactly 3 iterations (the cap), got %d", answer.Iterations)
	}
	if strings.TrimSpace(answer.Text) == "" {
		t.Fatalf("aborted run must still produce an answer")
	}
	if !strings.Contains(answer.Text, "documentation passage") {
		t.Fatalf("best-effort answer should use collected observations: %q", answer.Text)
	}
}

func TestRouterBudgetExhaustedOnEmptyResults(t *testing.T) {
	// Every lookup comes back empty and the model never concludes; the
	// answer must still tell the user nothing matched.
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"check_pieces","input":"teleport widget"}`,
		`{"action":"tool","tool":"check_pieces","input":"teleportation"}`,
		`{"action":"tool","tool":"check_pieces","input":"teleport"}`,
		`{"action":"tool","tool":"check_pieces","input":"portal"}`,
	}}
	catalog := &stubTool{name: "check_pieces", output: `No integration matching "teleport" was found in the catalog.`}
	router := newTestRouter(llm, catalog)

	answer := router.Answer(context.Background(), "find me a teleportation integration somehow", nil)
	if answer.State != StateAborted {
		t.Fatalf("expected aborted at the cap, got %s", answer.State)
	}
	if answer.Iterations != 3 {
		t.Fatalf("expected exactly 3 iterations (the cap), got %d", answer.Iterations)
	}
	if !strings.Contains(answer.Text, "No integration matching") {
		t.Fatalf("answer should carry the empty lookup result forward: %q", answer.Text)
	}
}

func TestRouterAllToolsFailStillAnswers(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"check_pieces","input":"notion"}`,
		`{"action":"tool","tool":"search_docs","input":"notion"}`,
		`{"action":"tool","tool":"web_search","input":"notion"}`,
	}}
	router := newTestRouter(llm,
		&stubTool{name: "check_pieces", err: fmt.Errorf("db locked")},
		&stubTool{name: "search_docs", err: fmt.Errorf("index offline")},
		&stubTool{name: "web_search", err: fmt.Errorf("no credential")},
	)

	answer := router.Answer(context.Background(), "research notion thoroughly across all sources", nil)
	if strings.TrimSpace(answer.Text) == "" {
		t.Fatalf("run with only failed tools must still answer")
	}
	for _, obs := range answer.Observations {
		if !obs.IsError {
			t.Fatalf("expected only error observations, got %+v", obs)
		}
	}
}

func TestRouterCancelledContextAborts(t *testing.T) {
	llm := &stubLLM{responses: []string{planResponse}}
	router := newTestRouter(llm, &stubTool{name: "search_docs", output: "docs"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer := router.Answer(ctx, "whatever you can manage under pressure", nil)
	if answer.State != StateAborted {
		t.Fatalf("expected aborted on cancelled context, got %s", answer.State)
	}
	if strings.TrimSpace(answer.Text) == "" {
		t.Fatalf("cancelled run must still produce a deterministic answer")
	}
}

func TestRouterRepeatedCallSuppressed(t *testing.T) {
	llm := &stubLLM{responses: []string{
		planResponse,
		`{"action":"tool","tool":"search_docs","input":"same"}`,
		`{"action":"tool","tool":"search_docs","input":"same"}`,
		`{"action":"final","answer":"Answered from the single lookup."}`,
	}}
	docs := &stubTool{name: "search_docs", output: "docs"}
	router := newTestRouter(llm, docs)

	answer := router.Answer(context.Background(), "investigate connector limits for the platform", nil)
	if docs.calls != 1 {
		t.Fatalf("identical call should execute once, got %d", docs.calls)
	}
	if len(answer.Observations) != 2 || !answer.Observations[1].IsError {
		t.Fatalf("repeat should be recorded as an error observation: %+v", answer.Observations)
	}
}
