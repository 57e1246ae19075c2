// Package web_search abstracts live web lookup behind a provider
// interface. Providers are selected once at wiring time; callers never
// consult the environment to pick one.
package web_search

import (
	"context"
	"fmt"
	"time"

	"github.com/flowpilot-ai/flowpilot/tools/web_search/models"
	"github.com/flowpilot-ai/flowpilot/tools/web_search/openai"
	"github.com/flowpilot-ai/flowpilot/tools/web_search/perplexity"
)

// Searcher runs a web search and returns ranked results.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.Result, error)
}

type Provider string

const (
	OpenAIProvider     Provider = "openai"
	PerplexityProvider Provider = "perplexity"
)

var ErrUnsupportedProvider = fmt.Errorf("unsupported web search provider")

// Options carries per-provider credentials and tuning. A missing key is
// not a construction error; the provider reports it on first use so the
// failure surfaces as an observation rather than a crash.
type Options struct {
	OpenAIAPIKey     string
	OpenAIModel      string
	PerplexityAPIKey string
	PerplexityModel  string
	Timeout          time.Duration
}

// NewSearcher returns the Searcher for the named provider.
func NewSearcher(provider Provider, opts Options) (Searcher, error) {
	switch provider {
	case OpenAIProvider:
		return openai.New(opts.OpenAIAPIKey, opts.OpenAIModel, opts.Timeout), nil
	case PerplexityProvider:
		return perplexity.New(opts.PerplexityAPIKey, opts.PerplexityModel, opts.Timeout), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
