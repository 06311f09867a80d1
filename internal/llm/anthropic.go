package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/pltanton/insightloop/internal/config"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type AnthropicBackend struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicBackend(cfg config.LLMConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicBackend{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     pickModel(cfg.Model, defaultAnthropicModel),
		maxTokens: maxTokens,
	}, nil
}

func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

func (b *AnthropicBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(pickModel(model, b.model)),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens: b.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	return StripThinking(resp.GetFirstContentText()), nil
}
