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

func TestHuggingFaceProvider_Registered(t *testing.T) {
	p := llm.GetProvider("huggingface")
	require.NotNil(t, p)
	assert.Contains(t, llm.ListProviders(), "huggingface")
}

func TestHuggingFaceProvider_Supports(t *testing.T) {
	p := &HuggingFaceProvider{}
	for _, k := range []content.Kind{
		content.KindCourseStructure, content.KindLessonText,
		content.KindLessonImage, content.KindLessonVideo, content.KindLessonQA,
	} {
		assert.True(t, p.Supports(k), k)
	}
}

func TestHuggingFaceProvider_BuildURL(t *testing.T) {
	p := &HuggingFaceProvider{}

	assert.Equal(t, "https://api-inference.huggingface.co/models/org/model",
		p.BuildURL("", "org/model", content.KindLessonText))
	assert.Equal(t, "http://mock:9000/models/sd",
		p.BuildURL("http://mock:9000/", "sd", content.KindLessonImage))
}

func TestHuggingFaceProvider_SetHeaders(t *testing.T) {
	p := &HuggingFaceProvider{}

	req, _ := http.NewRequest("POST", "http://mock/models/x", nil)
	p.SetHeaders(req, "hf_abc")
	assert.Equal(t, "Bearer hf_abc", req.Header.Get("Authorization"))
	assert.Equal(t, "true", req.Header.Get("x-wait-for-model"))
}

func TestHuggingFaceProvider_BuildRequestBody(t *testing.T) {
	p := &HuggingFaceProvider{}

	t.Run("text carries parameters", func(t *testing.T) {
		body, err := p.BuildRequestBody("m", content.KindLessonText,
			llm.Prompt{System: "sys", User: "usr"}, llm.Options{})
		require.NoError(t, err)

		var req hfRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Contains(t, req.Inputs, "sys")
		assert.Contains(t, req.Inputs, "usr")
		require.NotNil(t, req.Parameters)
		assert.Equal(t, 1500, req.Parameters.MaxNewTokens)
		require.NotNil(t, req.Parameters.ReturnFullText)
		assert.False(t, *req.Parameters.ReturnFullText)
	})

	t.Run("media sends inputs only", func(t *testing.T) {
		body, err := p.BuildRequestBody("m", content.KindLessonImage, llm.Prompt{User: "a leaf"}, llm.Options{})
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.NotContains(t, raw, "parameters")
	})
}

func TestHuggingFaceProvider_ParseResponse(t *testing.T) {
	p := &HuggingFaceProvider{}

	tests := []struct {
		name        string
		body        string
		contentType string
		kind        content.Kind
		wantText    string
		wantURL     string
		wantData    bool
		wantErr     bool
		transient   bool
	}{
		{
			name:        "generated text list",
			body:        `[{"generated_text":"hello"}]`,
			contentType: "application/json",
			kind:        content.KindLessonText,
			wantText:    "hello",
		},
		{
			name:        "generated text object",
			body:        `{"generated_text":"hi"}`,
			contentType: "application/json",
			kind:        content.KindLessonQA,
			wantText:    "hi",
		},
		{
			name:        "url object",
			body:        `{"url":"https://cdn.test/v.mp4"}`,
			contentType: "application/json",
			kind:        content.KindLessonVideo,
			wantURL:     "https://cdn.test/v.mp4",
		},
		{
			name:        "plain text",
			body:        "just words",
			contentType: "text/plain",
			kind:        content.KindLessonText,
			wantText:    "just words",
		},
		{
			name:        "raw image bytes",
			body:        "\x89PNG....",
			contentType: "image/png",
			kind:        content.KindLessonImage,
			wantData:    true,
		},
		{
			name:        "raw bytes for text kind",
			body:        "\x89PNG....",
			contentType: "image/png",
			kind:        content.KindLessonText,
			wantErr:     true,
		},
		{
			name:        "model loading error",
			body:        `{"error":"Model is currently loading"}`,
			contentType: "application/json",
			kind:        content.KindLessonText,
			wantErr:     true,
			transient:   true,
		},
		{
			name:        "empty list",
			body:        `[]`,
			contentType: "application/json",
			kind:        content.KindLessonText,
			wantErr:     true,
		},
		{
			name:        "empty body",
			body:        "  ",
			contentType: "application/json",
			kind:        content.KindLessonText,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseResponse([]byte(tt.body), tt.contentType, tt.kind)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.transient, llm.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantURL, got.URL)
			if tt.wantData {
				assert.Equal(t, []byte(tt.body), got.Data)
				assert.Equal(t, "image/png", got.MimeType)
			}
		})
	}
}
