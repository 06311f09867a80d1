package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/pltanton/insightloop/internal/llm"
)

const summaryPrompt = `
You are InsightLoop.AI, an autonomous research assistant.

User query:
%s

Web content (raw extracted text):
%s

Your task:
- Summarize the research into 6–10 bullet points
- Extract patterns, reasons, comparisons
- Give a clean structured answer
- Limit to ~300 words
`

// Summarizer produces a bullet synthesis of the snippets. When the backend
// fails or answers with degenerate output it falls back to an extractive
// summary, so Summarize always returns non-empty text.
type Summarizer struct {
	opts Options
}

func NewSummarizer(opts Options) *Summarizer {
	opts.defaults()
	return &Summarizer{opts: opts}
}

func (s *Summarizer) Summarize(ctx context.Context, query string, snippets []string) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("summarizer panicked, using fallback", "panic", r)
			summary = Fallback(snippets)
		}
	}()

	if s.opts.Backend != nil {
		prompt := fmt.Sprintf(summaryPrompt, query, combine(snippets, s.opts.MaxCombinedChars))
		retry := llm.Retry{
			MaxAttempts: s.opts.Attempts,
			Accept:      llm.MinLength(s.opts.MinResponseChars),
			Logger:      s.opts.Logger,
		}
		out, ok := retry.Do(ctx, func(ctx context.Context) (string, error) {
			return s.opts.Backend.Generate(ctx, s.opts.Model, prompt)
		})
		if ok {
			return out
		}
	}

	s.opts.Logger.Warn("backend unavailable, using fallback summary", "snippets", len(snippets))
	return Fallback(snippets)
}

// Fallback builds a deterministic summary from the first six snippets,
// skipping empty ones and fetch or extraction error lines.
func Fallback(snippets []string) string {
	if len(snippets) > fallbackSnippets {
		snippets = snippets[:fallbackSnippets]
	}

	var bullets []string
	for _, text := range snippets {
		if isErrorLine(text) {
			continue
		}
		short := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
		if short == "" {
			continue
		}
		if r := []rune(short); len(r) > fallbackChars {
			short = string(r[:fallbackChars]) + "..."
		}
		bullets = append(bullets, "• "+short)
	}

	if len(bullets) == 0 {
		return NoInsights
	}
	return FallbackBanner + strings.Join(bullets, "\n")
}

func isErrorLine(text string) bool {
	return strings.HasPrefix(text, "Error fetching") || strings.HasPrefix(text, "Error during extraction")
}
