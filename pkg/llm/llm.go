// Package llm implements the language model collaborator.
//
// A Client answers free-form prompts and schema-constrained prompts. The
// structured path derives a JSON schema from the destination Go type, asks
// the provider for schema-conforming output, and rejects anything that does
// not unmarshal cleanly (ErrModelOutputInvalid). Transport failures surface
// as ErrModelUnavailable.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/cadenlabs/agentbench/pkg/config"
)

// Client is the language model collaborator consumed by the workflows.
type Client interface {
	// Generate answers a prompt with free-form text.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStructured answers a prompt with JSON conforming to the
	// schema derived from out's type, and unmarshals it into out.
	GenerateStructured(ctx context.Context, prompt string, out any) error

	// ModelName identifies the backing model.
	ModelName() string

	Close() error
}

// New creates a provider from config.
func New(cfg *config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "gemini":
		return NewGemini(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// SchemaFor reflects a JSON schema from v's type, inlined and closed to
// unknown properties so providers can enforce it strictly.
func SchemaFor(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	// The $schema marker confuses some providers' strict validators.
	delete(out, "$schema")
	return out, nil
}

// decodeStructured parses a provider's JSON answer into out. Providers may
// wrap the object in markdown fences; those are stripped before parsing.
func decodeStructured(raw string, out any) error {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrModelOutputInvalid, err)
	}
	return nil
}
