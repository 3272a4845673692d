// Package providers implements model host adapters. Each registers itself
// with llm on import.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

const (
	anthropicDefaultURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"

	// The messages API requires max_tokens on every request.
	anthropicMinTokens = 1024
)

// AnthropicProvider serves text kinds over the Anthropic messages API.
type AnthropicProvider struct{}

func init() {
	llm.RegisterProvider(&AnthropicProvider{})
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

func (a *AnthropicProvider) Supports(kind content.Kind) bool {
	return kind.IsValid() && !kind.IsMedia()
}

func (a *AnthropicProvider) BuildURL(baseURL, _ string, _ content.Kind) string {
	return strings.TrimSuffix(firstSet(baseURL, anthropicDefaultURL), "/") + "/v1/messages"
}

func (a *AnthropicProvider) SetHeaders(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

func (a *AnthropicProvider) BuildRequestBody(model string, kind content.Kind, prompt llm.Prompt, opts llm.Options) ([]byte, error) {
	return json.Marshal(messagesRequest{
		Model:       model,
		System:      prompt.System,
		Messages:    []chatMessage{{Role: "user", Content: prompt.User}},
		MaxTokens:   max(tokenBudget(kind, opts), anthropicMinTokens),
		Temperature: opts.Temperature,
	})
}

// ParseResponse joins the text blocks; tool and thinking blocks are skipped.
func (a *AnthropicProvider) ParseResponse(body []byte, _ string, _ content.Kind) (*llm.Payload, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse messages response: %w", err)
	}

	var parts []string
	for _, b := range resp.Content {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return &llm.Payload{
		Text:         strings.Join(parts, ""),
		Model:        resp.Model,
		FinishReason: resp.StopReason,
	}, nil
}
