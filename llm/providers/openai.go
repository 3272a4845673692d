package providers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

// OpenAIProvider serves text kinds over chat completions and images over
// image generations. OpenRouter and other compatible hosts work through a
// custom base URL. Video is not offered.
type OpenAIProvider struct{}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

const openAIDefaultURL = "https://api.openai.com/v1"

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Supports(kind content.Kind) bool {
	return kind.IsValid() && kind != content.KindLessonVideo
}

func (o *OpenAIProvider) BuildURL(baseURL, _ string, kind content.Kind) string {
	if kind != content.KindLessonImage {
		return chatURL(baseURL, openAIDefaultURL)
	}
	base := strings.TrimSuffix(firstSet(baseURL, openAIDefaultURL), "/")
	return strings.TrimSuffix(base, "/chat/completions") + "/images/generations"
}

func (o *OpenAIProvider) SetHeaders(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

type imageRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// BuildRequestBody creates a chat body, or an image generation body for images.
func (o *OpenAIProvider) BuildRequestBody(model string, kind content.Kind, prompt llm.Prompt, opts llm.Options) ([]byte, error) {
	if kind != content.KindLessonImage {
		return buildChatBody(model, prompt, opts.Temperature, tokenBudget(kind, opts))
	}
	return json.Marshal(imageRequest{
		Model:  model,
		Prompt: prompt.Combined(),
		N:      1,
		Size:   "1024x1024",
	})
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// ParseResponse extracts chat text or the first generated image.
func (o *OpenAIProvider) ParseResponse(body []byte, _ string, kind content.Kind) (*llm.Payload, error) {
	if kind != content.KindLessonImage {
		return parseChatResponse(body)
	}

	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse image response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no images in response", llm.ErrNoContent)
	}

	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return &llm.Payload{Data: data, MimeType: "image/png"}, nil
	}
	return &llm.Payload{URL: img.URL}, nil
}
