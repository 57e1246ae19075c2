package core

import (
	"context"
	"strings"
	"testing"
)

func TestCodeGuidelinesContextSwitch(t *testing.T) {
	tool := &CodeGuidelinesTool{}
	ctx := context.Background()

	general, err := tool.Run(ctx, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(general, "Code piece guidelines") {
		t.Fatalf("general guidelines missing base content: %q", general[:60])
	}
	if strings.Contains(general, "API calls") || strings.Contains(general, "data transformation") {
		t.Fatalf("general guidelines should not carry context supplements")
	}

	apiCall, err := tool.Run(ctx, " API_CALL ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(apiCall, "Authentication patterns") {
		t.Fatalf("api_call guidelines missing supplement")
	}
	if !strings.Contains(apiCall, "Code piece guidelines") {
		t.Fatalf("api_call guidelines must include the base guidelines")
	}

	transform, err := tool.Run(ctx, "data_transform")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(transform, "data transformation") {
		t.Fatalf("data_transform guidelines missing supplement")
	}

	unknown, err := tool.Run(ctx, "quantum_mode")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if unknown != general {
		t.Fatalf("unknown context must fall back to general guidelines")
	}
}
