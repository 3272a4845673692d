package llm

import (
	"net/http"
	"sort"
	"sync"

	"github.com/c360studio/coursegen/content"
)

// Provider adapts one model host API. Providers build requests and parse
// raw responses; turning a payload into typed content is done by the client.
type Provider interface {
	// Name returns the provider identifier (e.g., "huggingface", "openai").
	Name() string

	// Supports reports whether the provider can produce the given kind.
	Supports(kind content.Kind) bool

	// BuildURL constructs the endpoint URL for a model and kind.
	BuildURL(baseURL, model string, kind content.Kind) string

	// SetHeaders adds authentication for the given credential key.
	SetHeaders(req *http.Request, key string)

	// BuildRequestBody creates the JSON request body.
	BuildRequestBody(model string, kind content.Kind, prompt Prompt, opts Options) ([]byte, error)

	// ParseResponse extracts the payload from a successful response.
	ParseResponse(body []byte, contentType string, kind content.Kind) (*Payload, error)
}

// Options are generation parameters shared by all providers.
type Options struct {
	// Temperature controls randomness. nil uses the host default.
	Temperature *float64

	// MaxTokens limits text length. 0 uses the host default.
	MaxTokens int
}

// Payload is a provider-neutral raw response.
type Payload struct {
	// Text is generated text for text kinds, or a URL some hosts return as text.
	Text string

	// Data is binary media returned inline.
	Data     []byte
	MimeType string

	// URL is a remote media location.
	URL string

	Model        string
	FinishReason string
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
