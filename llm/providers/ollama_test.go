package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/llm"
)

func TestOllamaProvider_Name(t *testing.T) {
	p := &OllamaProvider{}
	assert.Equal(t, "ollama", p.Name())
}

func TestOllamaProvider_Supports(t *testing.T) {
	p := &OllamaProvider{}
	assert.True(t, p.Supports(content.KindLessonText))
	assert.True(t, p.Supports(content.KindLessonQA))
	assert.True(t, p.Supports(content.KindCourseStructure))
	assert.False(t, p.Supports(content.KindLessonImage))
	assert.False(t, p.Supports(content.KindLessonVideo))
	assert.False(t, p.Supports(content.Kind("nope")))
}

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "custom base URL",
			baseURL: "http://gpu-server:11434/v1",
			want:    "http://gpu-server:11434/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "http://localhost:11434/v1/",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "already has chat completions",
			baseURL: "http://localhost:11434/v1/chat/completions",
			want:    "http://localhost:11434/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL, "llama3", content.KindLessonText))
		})
	}
}

func TestOllamaProvider_SetHeaders(t *testing.T) {
	p := &OllamaProvider{}

	req, _ := http.NewRequest("POST", "http://localhost:11434/v1/chat/completions", nil)
	p.SetHeaders(req, "")
	assert.Empty(t, req.Header.Get("Authorization"))

	p.SetHeaders(req, "k1")
	assert.Equal(t, "Bearer k1", req.Header.Get("Authorization"))
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}
	temp := 0.2

	body, err := p.BuildRequestBody("llama3", content.KindLessonText,
		llm.Prompt{System: "be brief", User: "explain"}, llm.Options{Temperature: &temp, MaxTokens: 512})
	require.NoError(t, err)

	var req chatRequest
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "llama3", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "explain", req.Messages[1].Content)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.2, *req.Temperature)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 512, *req.MaxTokens)
}

func TestOllamaProvider_BuildRequestBody_NoSystem(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("llama3", content.KindLessonQA, llm.Prompt{User: "q"}, llm.Options{})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Len(t, raw["messages"], 1)
	assert.NotContains(t, raw, "max_tokens")
	assert.NotContains(t, raw, "temperature")
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "valid response",
			body: `{"model":"llama3","choices":[{"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}]}`,
			want: "Hello!",
		},
		{
			name:    "empty choices",
			body:    `{"choices":[]}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			body:    `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseResponse([]byte(tt.body), "application/json", content.KindLessonText)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, "stop", got.FinishReason)
		})
	}
}
