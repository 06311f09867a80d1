// Package insight turns extracted page text into a bullet summary and an
// optional markdown comparison table.
package insight

import (
	"log/slog"
	"strings"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/llm"
	"github.com/pltanton/insightloop/internal/logger"
)

const (
	DefaultAttempts         = 2
	DefaultMaxCombinedChars = 15000
	DefaultMinResponseChars = 10

	FallbackBanner = "Fallback Summary (Ollama unavailable):\n"
	NoInsights     = "No insights could be generated."

	fallbackSnippets = 6
	fallbackChars    = 200
)

// Options is shared by Summarizer and TableSynthesizer.
type Options struct {
	Backend          llm.Backend
	Model            string
	Attempts         int
	MaxCombinedChars int
	MinResponseChars int
	Logger           *slog.Logger
}

// OptionsFromConfig maps the llm and insight sections onto Options.
func OptionsFromConfig(backend llm.Backend, llmCfg config.LLMConfig, cfg config.InsightConfig, log *slog.Logger) Options {
	return Options{
		Backend:          backend,
		Model:            llmCfg.Model,
		Attempts:         cfg.SummaryAttempts,
		MaxCombinedChars: cfg.MaxCombinedChars,
		MinResponseChars: cfg.MinResponseChars,
		Logger:           log,
	}
}

func (o *Options) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.MaxCombinedChars <= 0 {
		o.MaxCombinedChars = DefaultMaxCombinedChars
	}
	if o.MinResponseChars <= 0 {
		o.MinResponseChars = DefaultMinResponseChars
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
}

// combine joins snippets with blank lines and caps the result at max runes.
func combine(snippets []string, max int) string {
	return truncateRunes(strings.Join(snippets, "\n\n"), max)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
