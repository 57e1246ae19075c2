package core

import (
	"fmt"
	"strings"
)

// createPlanningPrompt builds the plan-generation prompt for one user
// message, with recent conversation replayed for context.
func createPlanningPrompt(message string, history []HistoryTurn, toolNames []string) string {
	historyBlock := ""
	if len(history) > 0 {
		var b strings.Builder
		for _, turn := range history {
			content := turn.Content
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, content)
		}
		historyBlock = "\nCONVERSATION SO FAR:\n" + b.String()
	}

	return fmt.Sprintf(`You are the planning stage of an automation-platform assistant. Users ask about integrations (pieces), their actions and triggers, building workflows, troubleshooting and configuration.%s

USER MESSAGE: %s

AVAILABLE TOOLS: %s

Classify the query and produce a minimal plan. Respond with ONLY a JSON object:
{
  "intent": "one sentence describing what the user wants",
  "query_type": "simple_check|flow_building|explanation|troubleshooting|configuration",
  "action_plan": ["ordered steps"],
  "recommended_tools": ["tool names from the list above, in order of preference"],
  "search_queries": ["1-3 focused search strings"],
  "max_tool_calls": 3,
  "stopping_condition": "when to stop calling tools",
  "fallback_strategy": "what to do if tools fail",
  "context": "anything from the conversation that matters"
}

Rules:
- simple_check: user asks whether an integration/action/trigger exists. Plan one check_pieces call.
- flow_building: user wants to build a workflow. Plan check_pieces for each named service, then search_docs.
- explanation: user wants a concept explained. Prefer search_docs.
- troubleshooting: user reports something broken. Prefer search_docs, then web_search if platform docs are not enough.
- configuration: user asks how to set something up. Prefer check_pieces for the piece, then search_docs.
- Keep max_tool_calls small. One tool call is often enough.`, historyBlock, message, strings.Join(toolNames, ", "))
}

// createDecisionPrompt asks the routing model for the next step given
// the plan and observations so far.
func createDecisionPrompt(message string, plan QueryPlan, history []HistoryTurn, observations []Observation, toolNames []string, remaining int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an automation-platform assistant deciding your next step.\n\n")
	if len(history) > 0 {
		b.WriteString("CONVERSATION SO FAR:\n")
		for _, turn := range history {
			content := turn.Content
			if len(content) > 400 {
				content = content[:400] + "..."
			}
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "USER MESSAGE: %s\n\n", message)
	fmt.Fprintf(&b, "PLAN: intent=%q type=%s steps=%v tools=%v\n\n", plan.Intent, plan.QueryType, plan.ActionPlan, plan.RecommendedTools)

	if len(observations) == 0 {
		b.WriteString("OBSERVATIONS: none yet\n\n")
	} else {
		b.WriteString("OBSERVATIONS (in order):\n")
		for i, obs := range observations {
			output := obs.Output
			if len(output) > 1200 {
				output = output[:1200] + "..."
			}
			status := "ok"
			if obs.IsError {
				status = "FAILED"
			}
			fmt.Fprintf(&b, "%d. %s(%q) [%s]: %s\n", i+1, obs.Tool, obs.Input, status, output)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "You may make %d more tool call(s). Available tools: %s\n\n", remaining, strings.Join(toolNames, ", "))
	b.WriteString(`Respond with ONLY a JSON object, one of:
{"action": "tool", "tool": "<name>", "input": "<tool input>"}
{"action": "final", "answer": "<your complete answer to the user>"}

Rules:
- If the observations already answer the question, finish now.
- Never repeat a tool call with the same input.
- If a tool failed, either try a different tool or finish with what you have.
- If you are told 0 calls remain, you MUST respond with action "final".
- A final answer must say which sources informed it (integration catalog, platform documentation, live web search) and flag web-sourced facts as potentially out of date.`)

	return b.String()
}

// createSynthesisPrompt produces the final answer from all observations
// when the routing loop ends without a model-provided final answer.
func createSynthesisPrompt(message string, plan QueryPlan, observations []Observation, aborted bool) string {
	var b strings.Builder

	b.WriteString("You are an automation-platform assistant. Write the final answer for the user.\n\n")
	fmt.Fprintf(&b, "USER MESSAGE: %s\n", message)
	fmt.Fprintf(&b, "INTENT: %s\n\n", plan.Intent)

	if len(observations) == 0 {
		b.WriteString("No tool results are available.\n")
	} else {
		b.WriteString("TOOL RESULTS (in order):\n")
		for i, obs := range observations {
			output := obs.Output
			if len(output) > 1500 {
				output = output[:1500] + "..."
			}
			status := "ok"
			if obs.IsError {
				status = "failed"
			}
			fmt.Fprintf(&b, "%d. %s [%s]: %s\n", i+1, obs.Tool, status, output)
		}
	}
	if aborted {
		b.WriteString("\nThe research budget ran out before everything was verified. Answer with what is known and say what could not be confirmed.\n")
	}
	b.WriteString("\nAnswer directly and concretely. If an integration does not exist, say so and suggest the nearest alternative or an HTTP/webhook approach. Say which sources informed the answer (integration catalog, platform documentation, live web search), and flag anything that came from live web search as potentially out of date.")

	return b.String()
}

// The code guidelines are static references returned by the code
// guidelines tool, keyed by context. Kept in code; they change with
// the platform's code piece, not with the knowledge base.
const codeGuidelines = `Code piece guidelines:

1. Export a single async function named "code" that receives an "inputs" object and returns a JSON-serializable value.
2. Declare every value the code needs as an input property; never read credentials from the code body.
3. Return early with a clear error message when a required input is missing.
4. Keep dependencies to built-ins where possible; heavy packages slow every run.
5. Network calls must set a timeout and handle non-2xx responses explicitly.
6. The return value feeds later steps: prefer a flat object with named fields over raw strings.

Example:

export const code = async (inputs: { url: string }) => {
  const res = await fetch(inputs.url, { signal: AbortSignal.timeout(10000) });
  if (!res.ok) {
    throw new Error('Request failed with status ' + res.status);
  }
  return { body: await res.json() };
};`

const codeGuidelinesAPICall = codeGuidelines + `

Additional guidelines for API calls:

1. Authentication patterns:
   - Bearer token: headers: { 'Authorization': 'Bearer ' + inputs.token }
   - API key header: headers: { 'X-API-Key': inputs.apiKey }
   - Basic auth: headers: { 'Authorization': 'Basic ' + btoa(inputs.username + ':' + inputs.password) }
2. Always validate the response status before reading the body.
3. Parse JSON responses explicitly and return structured data for the next step.
4. Use descriptive names for returned fields.`

const codeGuidelinesDataTransform = codeGuidelines + `

Additional guidelines for data transformation:

1. Work with the arrays and objects produced by previous steps.
2. Prefer standard methods (map, filter, reduce) over manual loops.
3. Handle empty arrays and null values before transforming.
4. Return the transformed data in a clear, flat structure.
5. Keep each transformation simple; chain steps instead of nesting logic.`
