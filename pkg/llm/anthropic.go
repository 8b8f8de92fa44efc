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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// Anthropic talks to the Anthropic messages API. Structured output embeds
// the schema in the prompt and prefills the assistant turn with "{" so the
// model continues with a JSON object.
type Anthropic struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg *config.LLMConfig) *Anthropic {
	return &Anthropic{
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

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Client.
func (p *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []anthropicMessage{{Role: "user", Content: prompt}}
	return p.complete(ctx, messages)
}

// GenerateStructured implements Client.
func (p *Anthropic) GenerateStructured(ctx context.Context, prompt string, out any) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}

	messages := []anthropicMessage{
		{
			Role: "user",
			Content: fmt.Sprintf(
				"%s\n\nRespond with a single JSON object matching this schema, and nothing else:\n%s",
				prompt, schemaJSON),
		},
		// Prefill forces the reply to open a JSON object.
		{Role: "assistant", Content: "{"},
	}

	text, err := p.complete(ctx, messages)
	if err != nil {
		return err
	}
	return decodeStructured("{"+text, out)
}

// ModelName implements Client.
func (p *Anthropic) ModelName() string {
	return p.cfg.Model
}

// Close implements Client.
func (p *Anthropic) Close() error {
	return nil
}

func (p *Anthropic) complete(ctx context.Context, messages []anthropicMessage) (string, error) {
	tracer := observability.Tracer("agentbench.llm")
	ctx, span := tracer.Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("llm.provider", "anthropic"),
		attribute.String("llm.model", p.cfg.Model),
	)
	defer span.End()

	request := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Messages:    messages,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrModelUnavailable, err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

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

	var parsed anthropicResponse
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

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content", ErrModelOutputInvalid)
}
