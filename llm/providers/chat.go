package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

// tokenBudget is the output limit for kind when the caller sets none.
// Outlines and lesson bodies are the long documents; media prompts send no
// limit at all.
func tokenBudget(kind content.Kind, opts llm.Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	switch kind {
	case content.KindCourseStructure:
		return 2048
	case content.KindLessonText:
		return 1500
	case content.KindLessonQA:
		return 800
	default:
		return 0
	}
}

// chatURL appends /chat/completions to baseURL (or def) unless present.
func chatURL(baseURL, def string) string {
	base := strings.TrimSuffix(firstSet(baseURL, def), "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func firstSet(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// chatRequest and chatResponse are the OpenAI-compatible chat wire format
// shared by the openai and ollama providers.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// buildChatBody sends the system prompt as its own message when set. A zero
// maxTokens leaves the limit to the host.
func buildChatBody(model string, prompt llm.Prompt, temperature *float64, maxTokens int) ([]byte, error) {
	req := chatRequest{Model: model, Temperature: temperature}
	if prompt.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt.User})
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

func parseChatResponse(body []byte) (*llm.Payload, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", llm.ErrNoContent)
	}

	choice := resp.Choices[0]
	return &llm.Payload{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}, nil
}
