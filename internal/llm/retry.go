package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pltanton/insightloop/internal/logger"
)

// Retry calls a generator up to MaxAttempts times and returns the first
// output Accept approves. Errors and panics count as failed attempts.
type Retry struct {
	MaxAttempts int
	Accept      func(string) bool
	Logger      *slog.Logger
}

// MinLength accepts outputs whose trimmed length exceeds n characters.
func MinLength(n int) func(string) bool {
	return func(s string) bool {
		return len([]rune(strings.TrimSpace(s))) > n
	}
}

// Do runs fn until an attempt is accepted. ok is false when every attempt
// failed; the caller supplies its own fallback.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (out string, ok bool) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	accept := r.Accept
	if accept == nil {
		accept = MinLength(0)
	}
	log := r.Logger
	if log == nil {
		log = logger.Default()
	}

	for i := 1; i <= attempts; i++ {
		if ctx.Err() != nil {
			log.Warn("generation cancelled", "attempt", i, "error", ctx.Err())
			return "", false
		}
		resp, err := attempt(ctx, fn)
		if err != nil {
			log.Warn("generation attempt failed", "attempt", i, "of", attempts, "error", err)
			continue
		}
		if !accept(resp) {
			log.Warn("generation attempt rejected", "attempt", i, "of", attempts, "chars", len(resp))
			continue
		}
		return strings.TrimSpace(resp), true
	}
	return "", false
}

func attempt(ctx context.Context, fn func(ctx context.Context) (string, error)) (resp string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
