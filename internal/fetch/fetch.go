// Package fetch retrieves raw page markup for the research pipeline.
//
// Fetchers never return errors: a failed retrieval is a failed
// research.Outcome whose reason reads "Error fetching {url}: {detail}".
package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/research"
)

// ErrorPrefix starts the reason of every failed fetch.
const ErrorPrefix = "Error fetching "

// Fetcher retrieves the markup behind one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) research.Outcome
}

// New builds the fetcher selected by cfg.Mode.
func New(cfg config.FetchConfig, log *slog.Logger) (Fetcher, error) {
	opts := Options{
		Timeout:        cfg.Timeout,
		MaxBytes:       cfg.MaxBytes,
		UserAgent:      cfg.UserAgent,
		SSRFProtection: cfg.SSRFProtection,
		Logger:         log,
	}
	switch cfg.Mode {
	case "", "http":
		return NewHTTPFetcher(opts), nil
	case "browser":
		return NewBrowserFetcher(BrowserOptions{Options: opts, Bin: cfg.BrowserBin, Stealth: cfg.Stealth}), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", cfg.Mode)
	}
}

func failure(url string, err error) research.Outcome {
	return research.Failed(fmt.Sprintf("%s%s: %v", ErrorPrefix, url, err))
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return logger.Default()
	}
	return log
}
