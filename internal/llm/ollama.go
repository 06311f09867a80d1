package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/pltanton/insightloop/internal/config"
)

const defaultOllamaModel = "llama3.2"

// OllamaBackend runs prompts against a local Ollama server.
type OllamaBackend struct {
	llm   llms.Model
	model string
	opts  []llms.CallOption
}

func NewOllamaBackend(cfg config.LLMConfig) (*OllamaBackend, error) {
	model := pickModel(cfg.Model, defaultOllamaModel)
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	lm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}

	var callOpts []llms.CallOption
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(cfg.Temperature))
	}

	return &OllamaBackend{llm: lm, model: model, opts: callOpts}, nil
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

func (b *OllamaBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	opts := append([]llms.CallOption{llms.WithModel(pickModel(model, b.model))}, b.opts...)
	response, err := llms.GenerateFromSinglePrompt(ctx, b.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return StripThinking(response), nil
}
