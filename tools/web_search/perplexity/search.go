// Package perplexity searches the web through Perplexity's sonar chat
// completions, which ground answers in live citations.
package perplexity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowpilot-ai/flowpilot/tools/web_search/models"
)

const defaultBaseURL = "https://api.perplexity.ai"

type Search struct {
	APIKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

func New(apiKey, model string, timeout time.Duration) *Search {
	if model == "" {
		model = "sonar"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Search{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReply struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *Search) Search(ctx context.Context, query string, k int) ([]models.Result, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("perplexity: %w", models.ErrNotConfigured)
	}
	if k <= 0 {
		k = 5
	}

	body, err := json.Marshal(chatRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Answer concisely with sources."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("perplexity web search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var reply chatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("perplexity web search: decoding response: %w", err)
	}
	if len(reply.Choices) == 0 {
		return nil, fmt.Errorf("perplexity web search: empty response")
	}

	content := strings.TrimSpace(reply.Choices[0].Message.Content)
	var out []models.Result
	out = append(out, models.Result{Title: "Perplexity answer", Snippet: snippetOf(content)})
	for i, url := range reply.Citations {
		if len(out) > k {
			break
		}
		out = append(out, models.Result{Title: fmt.Sprintf("Source %d", i+1), URL: url})
	}
	return out, nil
}

func snippetOf(text string) string {
	if len(text) > 600 {
		return text[:600]
	}
	return text
}
