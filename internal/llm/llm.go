// Package llm is the generative backend used for summaries and tables.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pltanton/insightloop/internal/config"
)

// Backend generates a completion for a single prompt. An empty model selects
// the backend's configured default.
type Backend interface {
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type ErrUnsupportedBackend struct {
	Backend string
}

func (e ErrUnsupportedBackend) Error() string {
	return fmt.Sprintf("unsupported LLM backend: %s", e.Backend)
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg config.LLMConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "ollama":
		return NewOllamaBackend(cfg)
	case "openai":
		return NewOpenAIBackend(cfg)
	case "anthropic":
		return NewAnthropicBackend(cfg)
	default:
		return nil, ErrUnsupportedBackend{Backend: cfg.Backend}
	}
}

func pickModel(model, fallback string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return fallback
}

// StripThinking removes <think>...</think> blocks that reasoning models emit
// ahead of their answer.
func StripThinking(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}
