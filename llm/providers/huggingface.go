package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

// HuggingFaceProvider implements a run(task, payload) style inference host:
// POST {base}/models/{model} with {"inputs": ...}. It serves every kind;
// image and video models answer with raw bytes.
type HuggingFaceProvider struct{}

func init() {
	llm.RegisterProvider(&HuggingFaceProvider{})
}

// Name returns the provider identifier.
func (h *HuggingFaceProvider) Name() string {
	return "huggingface"
}

// Supports reports whether the provider can produce kind.
func (h *HuggingFaceProvider) Supports(kind content.Kind) bool {
	return kind.IsValid()
}

// BuildURL constructs the per-model inference endpoint.
func (h *HuggingFaceProvider) BuildURL(baseURL, model string, _ content.Kind) string {
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return baseURL + "/models/" + strings.TrimPrefix(model, "/")
}

// SetHeaders adds bearer authentication.
func (h *HuggingFaceProvider) SetHeaders(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	// Wait for cold models instead of failing fast with 503.
	req.Header.Set("x-wait-for-model", "true")
}

type hfRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters *hfParameters `json:"parameters,omitempty"`
}

type hfParameters struct {
	MaxNewTokens   int      `json:"max_new_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ReturnFullText *bool    `json:"return_full_text,omitempty"`
}

// BuildRequestBody creates the inference request body.
func (h *HuggingFaceProvider) BuildRequestBody(_ string, kind content.Kind, prompt llm.Prompt, opts llm.Options) ([]byte, error) {
	req := hfRequest{Inputs: prompt.Combined()}
	if !kind.IsMedia() {
		fullText := false
		req.Parameters = &hfParameters{
			MaxNewTokens:   tokenBudget(kind, opts),
			Temperature:    opts.Temperature,
			ReturnFullText: &fullText,
		}
	}
	return json.Marshal(req)
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
	Error         string `json:"error"`
	URL           string `json:"url"`
}

// ParseResponse accepts the host's response shapes: raw media bytes,
// [{"generated_text"}], {"generated_text"}, {"url"}, or {"error"}.
func (h *HuggingFaceProvider) ParseResponse(body []byte, contentType string, kind content.Kind) (*llm.Payload, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "video/") ||
		mediaType == "application/octet-stream" {
		if !kind.IsMedia() {
			return nil, llm.NewFatalError(fmt.Errorf("unexpected %s response for %s", mediaType, kind))
		}
		return &llm.Payload{Data: body, MimeType: mediaTypeOrEmpty(mediaType)}, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", llm.ErrNoContent)
	}

	var gen hfGenerated
	switch trimmed[0] {
	case '[':
		var list []hfGenerated
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("parse huggingface response: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty result list", llm.ErrNoContent)
		}
		gen = list[0]
	case '{':
		if err := json.Unmarshal(trimmed, &gen); err != nil {
			return nil, fmt.Errorf("parse huggingface response: %w", err)
		}
	default:
		// Some hosts return plain text.
		return &llm.Payload{Text: string(trimmed)}, nil
	}

	if gen.Error != "" {
		return nil, llm.NewTransientError(fmt.Errorf("model host: %s", gen.Error))
	}
	return &llm.Payload{Text: gen.GeneratedText, URL: gen.URL}, nil
}

func mediaTypeOrEmpty(mediaType string) string {
	if mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}
