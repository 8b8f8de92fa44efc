package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/httpclient"
	"github.com/cadenlabs/agentbench/pkg/observability"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to the OpenAI chat completions API, or any server exposing a
// compatible endpoint via base_url. Structured output uses the json_schema
// response format.
type OpenAI struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(cfg *config.LLMConfig) *OpenAI {
	return &OpenAI{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		),
	}
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate implements Client.
func (p *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	req := p.baseRequest(prompt)
	return p.complete(ctx, req)
}

// GenerateStructured implements Client.
func (p *OpenAI) GenerateStructured(ctx context.Context, prompt string, out any) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}

	req := p.baseRequest(prompt)
	req.ResponseFormat = &openAIResponseFormat{
		Type: "json_schema",
		JSONSchema: &openAIJSONSchema{
			Name:   "response",
			Schema: schema,
			Strict: true,
		},
	}

	text, err := p.complete(ctx, req)
	if err != nil {
		return err
	}
	return decodeStructured(text, out)
}

// ModelName implements Client.
func (p *OpenAI) ModelName() string {
	return p.cfg.Model
}

// Close implements Client.
func (p *OpenAI) Close() error {
	return nil
}

func (p *OpenAI) baseRequest(prompt string) openAIRequest {
	maxTokens := p.cfg.MaxTokens
	return openAIRequest{
		Model:       p.cfg.Model,
		Temperature: p.cfg.Temperature,
		MaxTokens:   &maxTokens,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	}
}

func (p *OpenAI) complete(ctx context.Context, request openAIRequest) (string, error) {
	tracer := observability.Tracer("agentbench.llm")
	ctx, span := tracer.Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", p.cfg.Model),
	)
	defer span.End()

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrModelUnavailable, err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: reading response: %v", ErrModelUnavailable, err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrModelUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		span.SetStatus(codes.Error, msg)
		return "", fmt.Errorf("%w: %s", ErrModelUnavailable, msg)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrModelOutputInvalid)
	}
	return parsed.Choices[0].Message.Content, nil
}
