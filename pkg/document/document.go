// Package document loads answer context for the recursive Q&A workflow.
//
// Context files (.txt, .md, .pdf) are concatenated and truncated to a token
// budget so the combined prompt stays within model limits.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkoukk/tiktoken-go"

	"github.com/cadenlabs/agentbench/pkg/config"
)

// Loader reads and assembles document context.
type Loader struct {
	cfg *config.DocumentsConfig
}

// NewLoader creates a loader from config.
func NewLoader(cfg *config.DocumentsConfig) *Loader {
	return &Loader{cfg: cfg}
}

// LoadContext reads all configured files and returns the combined,
// token-truncated context. No configured paths yields an empty context.
func (l *Loader) LoadContext(ctx context.Context) (string, error) {
	if len(l.cfg.Paths) == 0 {
		return "", nil
	}

	var parts []string
	for _, path := range l.cfg.Paths {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := loadFile(path)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- %s ---\n%s", filepath.Base(path), text))
	}

	combined := strings.Join(parts, "\n\n")
	return Truncate(combined, l.cfg.MaxContextTokens, l.cfg.TokenizerModel), nil
}

func loadFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDF(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("parsing PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("PDF page extraction failed", "path", path, "page", pageNum, "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Truncate limits text to maxTokens tokens using the model's tiktoken
// encoding. When the encoding cannot be initialized (e.g. no network to
// fetch the BPE data), a character-count approximation is used instead.
func Truncate(text string, maxTokens int, model string) string {
	if maxTokens <= 0 || text == "" {
		return text
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("tokenizer unavailable, using approximate truncation", "error", err)
		return approximateTruncate(text, maxTokens)
	}

	tokens := encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return encoding.Decode(tokens[:maxTokens])
}

// approximateTruncate assumes ~4 characters per token.
func approximateTruncate(text string, maxTokens int) string {
	limit := maxTokens * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
