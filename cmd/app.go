package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/extract"
	"github.com/pltanton/insightloop/internal/fetch"
	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/insight"
	"github.com/pltanton/insightloop/internal/llm"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/research"
	"github.com/pltanton/insightloop/internal/search"
)

// app holds the long-lived pieces a command needs.
type app struct {
	pipeline *research.Pipeline
	store    history.Store
	closers  []io.Closer
}

// newPipeline wires search, fetch, extract and the LLM stages from cfg.
func newPipeline(cfg *config.Config, log *slog.Logger, opts ...research.Option) (*research.Pipeline, []io.Closer, error) {
	manager, err := search.NewManager(cfg.Search, search.NewRegistry())
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}
	if len(manager.ListEngines()) == 0 {
		log.Warn("no search engine configured; set TAVILY_API_KEY or SEARXNG_URL")
	}

	fetcher, err := fetch.New(cfg.Fetch, log)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch: %w", err)
	}
	var closers []io.Closer
	if c, ok := fetcher.(io.Closer); ok {
		closers = append(closers, c)
	}

	backend, err := llm.NewBackend(cfg.LLM)
	if err != nil {
		return nil, closers, fmt.Errorf("llm: %w", err)
	}
	insightOpts := insight.OptionsFromConfig(backend, cfg.LLM, cfg.Insight, log)

	p := research.New(research.Components{
		Searcher:   search.NewProvider(manager),
		Fetcher:    fetcher,
		Extractor:  extract.FromConfig(cfg.Extract, log),
		Summarizer: insight.NewSummarizer(insightOpts),
		Tables:     insight.NewTableSynthesizer(insightOpts),
	}, research.Config{
		MaxResults:  cfg.Search.MaxResults,
		Concurrency: cfg.Pipeline.Concurrency,
	}, append([]research.Option{research.WithLogger(log)}, opts...)...)
	return p, closers, nil
}

// newApp builds the pipeline and, when withHistory is set, opens the store.
func newApp(ctx context.Context, withHistory bool, opts ...research.Option) (*app, error) {
	log := logger.Default()
	p, closers, err := newPipeline(cfg, log, opts...)
	a := &app{pipeline: p, closers: closers}
	if err != nil {
		a.Close()
		return nil, err
	}
	if withHistory {
		store, err := history.Open(ctx, cfg.History)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store)
	}
	return a, nil
}

// openStore opens the history store alone, for commands that never run research.
func openStore(ctx context.Context) (history.Store, error) {
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return store, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Warn("close: %v", err)
		}
	}
}
