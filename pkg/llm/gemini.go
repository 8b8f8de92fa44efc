package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/observability"
)

// Gemini talks to the Google Gemini API through the official genai SDK.
// Structured output constrains the response MIME type to JSON and embeds
// the schema in the prompt; the answer is validated by unmarshaling.
type Gemini struct {
	cfg    *config.LLMConfig
	client *genai.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg *config.LLMConfig) (*Gemini, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

// Generate implements Client.
func (p *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	return p.complete(ctx, prompt, nil)
}

// GenerateStructured implements Client.
func (p *Gemini) GenerateStructured(ctx context.Context, prompt string, out any) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}

	structuredPrompt := fmt.Sprintf(
		"%s\n\nRespond with a single JSON object matching this schema, and nothing else:\n%s",
		prompt, schemaJSON)

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	text, err := p.complete(ctx, structuredPrompt, cfg)
	if err != nil {
		return err
	}
	return decodeStructured(text, out)
}

// ModelName implements Client.
func (p *Gemini) ModelName() string {
	return p.cfg.Model
}

// Close implements Client.
func (p *Gemini) Close() error {
	return nil
}

func (p *Gemini) complete(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	tracer := observability.Tracer("agentbench.llm")
	ctx, span := tracer.Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("llm.provider", "gemini"),
		attribute.String("llm.model", p.cfg.Model),
	)
	defer span.End()

	if cfg == nil {
		cfg = &genai.GenerateContentConfig{}
	}
	cfg.Temperature = genai.Ptr(float32(p.cfg.Temperature))
	if p.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty candidates", ErrModelOutputInvalid)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
