package core

import (
	"strings"
	"testing"
)

func TestSynthesisPromptAsksForSourceAttribution(t *testing.T) {
	prompt := createSynthesisPrompt("is slack supported?", QueryPlan{Intent: "check slack"}, []Observation{
		{Tool: "web_search", Input: "slack", Output: "Slack docs say yes."},
	}, false)

	if !strings.Contains(prompt, "which sources informed the answer") {
		t.Fatalf("synthesis prompt lacks attribution instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, "out of date") {
		t.Fatalf("synthesis prompt lacks web-freshness caveat:\n%s", prompt)
	}
}

func TestDecisionPromptFinalBranchRequiresAttribution(t *testing.T) {
	prompt := createDecisionPrompt("is slack supported?", QueryPlan{Intent: "check slack"}, nil, nil, testToolNames, 2)

	if !strings.Contains(prompt, "which sources informed it") {
		t.Fatalf("decision prompt final branch lacks attribution rule:\n%s", prompt)
	}
	if !strings.Contains(prompt, "out of date") {
		t.Fatalf("decision prompt lacks web-freshness caveat:\n%s", prompt)
	}
}

func TestSynthesisPromptMarksAbortedRuns(t *testing.T) {
	prompt := createSynthesisPrompt("question", QueryPlan{}, nil, true)
	if !strings.Contains(prompt, "could not be confirmed") {
		t.Fatalf("aborted synthesis prompt missing incompleteness instruction:\n%s", prompt)
	}
}
