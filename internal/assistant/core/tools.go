package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
	websearch "github.com/flowpilot-ai/flowpilot/tools/web_search"
)

// NewTools wires the standard tool set. Order matters: it is the order
// tools are presented to the routing model.
func NewTools(store *kb.Store, index *vector.Index, embedder vector.Embedder, searcher websearch.Searcher, topK int) []Tool {
	return []Tool{
		&CheckPiecesTool{store: store},
		&SearchDocsTool{index: index, embedder: embedder, topK: topK},
		&WebSearchTool{searcher: searcher},
		&CodeGuidelinesTool{},
	}
}

// ToolNames returns the names in presentation order.
func ToolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// CheckPiecesTool looks an integration up in the catalog.
type CheckPiecesTool struct {
	store *kb.Store
}

func (t *CheckPiecesTool) Name() string { return "check_pieces" }
func (t *CheckPiecesTool) Description() string {
	return "Check whether an integration (piece), action or trigger exists in the catalog. Input: the service or capability name."
}

func (t *CheckPiecesTool) Run(ctx context.Context, input string) (string, error) {
	records, err := t.store.Lookup(ctx, input)
	if err != nil {
		return "", fmt.Errorf("catalog lookup: %w", err)
	}
	if len(records) == 0 {
		return fmt.Sprintf("No integration matching %q was found in the catalog.", strings.TrimSpace(input)), nil
	}

	// An exact piece hit gets the full detail treatment.
	if records[0].Kind == kb.KindPiece {
		piece, ok, err := t.store.PieceDetails(ctx, records[0].Name)
		if err == nil && ok {
			return formatPiece(piece), nil
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Catalog matches for %q:\n", strings.TrimSpace(input))
	for i, r := range records {
		if i >= 10 {
			fmt.Fprintf(&b, "...and %d more.\n", len(records)-i)
			break
		}
		switch r.Kind {
		case kb.KindPiece:
			fmt.Fprintf(&b, "- %s (piece, %d actions, %d triggers): %s\n", r.DisplayName, r.ActionCount, r.TriggerCount, r.Description)
		default:
			fmt.Fprintf(&b, "- %s / %s (%s): %s\n", r.PieceDisplayName, r.DisplayName, r.Kind, r.Description)
		}
	}
	return b.String(), nil
}

func formatPiece(p kb.Piece) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s exists in the catalog.\n%s\n", p.DisplayName, p.Description)
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(p.Categories, ", "))
	}
	if len(p.Actions) > 0 {
		b.WriteString("Actions:\n")
		for _, a := range p.Actions {
			fmt.Fprintf(&b, "- %s: %s\n", a.DisplayName, a.Description)
			if len(a.Properties) > 0 {
				var req []string
				for _, prop := range a.Properties {
					if prop.Required {
						req = append(req, prop.Key)
					}
				}
				if len(req) > 0 {
					fmt.Fprintf(&b, "  required inputs: %s\n", strings.Join(req, ", "))
				}
			}
		}
	}
	if len(p.Triggers) > 0 {
		b.WriteString("Triggers:\n")
		for _, tr := range p.Triggers {
			fmt.Fprintf(&b, "- %s: %s\n", tr.DisplayName, tr.Description)
		}
	}
	return b.String()
}

// SearchDocsTool retrieves documentation chunks by semantic similarity.
type SearchDocsTool struct {
	index    *vector.Index
	embedder vector.Embedder
	topK     int
}

func (t *SearchDocsTool) Name() string { return "search_docs" }
func (t *SearchDocsTool) Description() string {
	return "Search platform documentation semantically. Input: a focused question or topic."
}

func (t *SearchDocsTool) Run(ctx context.Context, input string) (string, error) {
	hits, err := t.index.Search(ctx, t.embedder, input, t.topK)
	if err != nil {
		return "", fmt.Errorf("documentation search: %w", err)
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No documentation found for %q.", strings.TrimSpace(input)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Documentation matches for %q:\n", strings.TrimSpace(input))
	for _, h := range hits {
		text := h.Text
		if len(text) > 600 {
			text = text[:600] + "..."
		}
		fmt.Fprintf(&b, "## %s (score %.3f)\n%s\n", h.Title, h.Score, text)
	}
	return b.String(), nil
}

// WebSearchTool reaches the live web through the configured provider.
type WebSearchTool struct {
	searcher websearch.Searcher
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Search the live web for information not in the platform docs. Input: a search query."
}

func (t *WebSearchTool) Run(ctx context.Context, input string) (string, error) {
	results, err := t.searcher.Search(ctx, input, 5)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("The web search for %q returned no results.", strings.TrimSpace(input)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Web results for %q:\n", strings.TrimSpace(input))
	for _, r := range results {
		fmt.Fprintf(&b, "- %s", r.Title)
		if r.URL != "" {
			fmt.Fprintf(&b, " (%s)", r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, ": %s", r.Snippet)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// CodeGuidelinesTool returns the code-piece guidelines for a context.
type CodeGuidelinesTool struct{}

func (t *CodeGuidelinesTool) Name() string { return "code_guidelines" }
func (t *CodeGuidelinesTool) Description() string {
	return "Get the guidelines and an example for writing custom code steps. Input: context, one of general, api_call, data_transform (defaults to general)."
}

func (t *CodeGuidelinesTool) Run(ctx context.Context, input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "api_call":
		return codeGuidelinesAPICall, nil
	case "data_transform":
		return codeGuidelinesDataTransform, nil
	default:
		return codeGuidelines, nil
	}
}
