package providers

import (
	"net/http"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

const ollamaDefaultURL = "http://localhost:11434/v1"

// OllamaProvider talks to a local OpenAI-compatible chat server (Ollama,
// vLLM, llama.cpp). Local models keep their own output limits unless one is
// configured, and only text kinds are served.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Supports(kind content.Kind) bool {
	return kind.IsValid() && !kind.IsMedia()
}

func (o *OllamaProvider) BuildURL(baseURL, _ string, _ content.Kind) string {
	return chatURL(baseURL, ollamaDefaultURL)
}

// SetHeaders sends a bearer token when a credential is set; a plain Ollama
// ignores it, proxies in front of it may not.
func (o *OllamaProvider) SetHeaders(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func (o *OllamaProvider) BuildRequestBody(model string, _ content.Kind, prompt llm.Prompt, opts llm.Options) ([]byte, error) {
	return buildChatBody(model, prompt, opts.Temperature, opts.MaxTokens)
}

func (o *OllamaProvider) ParseResponse(body []byte, _ string, _ content.Kind) (*llm.Payload, error) {
	return parseChatResponse(body)
}
