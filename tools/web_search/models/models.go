package models

import "errors"

// ErrNotConfigured is returned when a provider is selected but has no
// credential. It surfaces at call time so the caller can degrade to a
// recorded observation instead of refusing to start.
var ErrNotConfigured = errors.New("web search provider not configured")

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
