package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenlabs/agentbench/pkg/config"
)

type candidatePick struct {
	Name string `json:"name"`
}

func TestSchemaFor(t *testing.T) {
	schema, err := SchemaFor(&candidatePick{})
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.NotContains(t, schema, "$schema")
}

func TestDecodeStructured(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain object", `{"name":"John Smith"}`, false},
		{"fenced object", "```json\n{\"name\":\"John Smith\"}\n```", false},
		{"padded object", "  {\"name\":\"John Smith\"}\n", false},
		{"not json", "the best match is John Smith", true},
		{"truncated", `{"name":"John`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out candidatePick
			err := decodeStructured(tt.raw, &out)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrModelOutputInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "John Smith", out.Name)
		})
	}
}

func newOpenAIStub(t *testing.T, handler http.HandlerFunc) (*OpenAI, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		BaseURL:  srv.URL,
	}
	cfg.SetDefaults()
	cfg.MaxRetries = 0
	return NewOpenAI(cfg), srv
}

func openAIReply(content string) []byte {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(reply)
	return data
}

func TestOpenAIGenerate(t *testing.T) {
	provider, _ := newOpenAIStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ", r.Header.Get("Authorization"))
		_, _ = w.Write(openAIReply("hello there"))
	})

	text, err := provider.Generate(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestOpenAIGenerateStructured(t *testing.T) {
	provider, _ := newOpenAIStub(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "response_format")
		_, _ = w.Write(openAIReply(`{"name":"John Smith"}`))
	})

	var out candidatePick
	require.NoError(t, provider.GenerateStructured(context.Background(), "pick one", &out))
	assert.Equal(t, "John Smith", out.Name)
}

func TestOpenAIGenerateStructuredRejectsMalformedOutput(t *testing.T) {
	provider, _ := newOpenAIStub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(openAIReply("I think John Smith fits best."))
	})

	var out candidatePick
	err := provider.GenerateStructured(context.Background(), "pick one", &out)
	assert.ErrorIs(t, err, ErrModelOutputInvalid)
}

func TestOpenAITransportErrorIsModelUnavailable(t *testing.T) {
	provider, _ := newOpenAIStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	_, err := provider.Generate(context.Background(), "say hello")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestAnthropicGenerateStructuredPrefill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "assistant", req.Messages[1].Role)
		assert.Equal(t, "{", req.Messages[1].Content)

		// The model continues the prefilled "{".
		reply := map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `"name":"John Smith"}`},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
	defer srv.Close()

	cfg := &config.LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-20250514", BaseURL: srv.URL}
	cfg.SetDefaults()
	cfg.MaxRetries = 0
	provider := NewAnthropic(cfg)

	var out candidatePick
	require.NoError(t, provider.GenerateStructured(context.Background(), "pick one", &out))
	assert.Equal(t, "John Smith", out.Name)
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := &config.LLMConfig{Provider: "openai"}
	cfg.SetDefaults()
	client, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, client)

	cfg = &config.LLMConfig{Provider: "anthropic"}
	cfg.SetDefaults()
	client, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, client)

	_, err = New(&config.LLMConfig{Provider: "unknown"})
	assert.Error(t, err)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrModelUnavailable, ErrModelOutputInvalid))
}
