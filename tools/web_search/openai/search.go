// Package openai searches the web through the OpenAI Responses API with
// the hosted web_search tool.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

type Search struct {
	APIKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

func New(apiKey, model string, timeout time.Duration) *Search {
	if model == "" {
		model = "gpt-4o-mini"
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

type responsesRequest struct {
	Model string         `json:"model"`
	Input string         `json:"input"`
	Tools []responseTool `json:"tools"`
}

type responseTool struct {
	Type string `json:"type"`
}

type responsesReply struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Annotations []struct {
				Type  string `json:"type"`
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
}

func (s *Search) Search(ctx context.Context, query string, k int) ([]models.Result, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", models.ErrNotConfigured)
	}
	if k <= 0 {
		k = 5
	}

	body, err := json.Marshal(responsesRequest{
		Model: s.Model,
		Input: query,
		Tools: []responseTool{{Type: "web_search"}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/responses", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai web search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var reply responsesReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("openai web search: decoding response: %w", err)
	}

	var out []models.Result
	for _, item := range reply.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type != "output_text" {
				continue
			}
			if len(content.Annotations) == 0 && content.Text != "" {
				// No citations. Surface the synthesized text itself so
				// the caller still gets something usable.
				out = append(out, models.Result{Title: "Web search summary", Snippet: snippetOf(content.Text)})
				continue
			}
			for _, ann := range content.Annotations {
				if ann.Type != "url_citation" {
					continue
				}
				out = append(out, models.Result{Title: ann.Title, URL: ann.URL, Snippet: snippetOf(content.Text)})
				if len(out) >= k {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func snippetOf(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 400 {
		return text[:400]
	}
	return text
}
