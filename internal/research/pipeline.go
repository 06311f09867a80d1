package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/search"
)

// Collaborators of a run. Each one absorbs its own failures.
type (
	Searcher interface {
		Search(ctx context.Context, query string, maxResults int) search.Result
	}
	Fetcher interface {
		Fetch(ctx context.Context, url string) Outcome
	}
	Extractor interface {
		Extract(markup string) Outcome
	}
	Summarizer interface {
		Summarize(ctx context.Context, query string, snippets []string) string
	}
	TableSynthesizer interface {
		Synthesize(ctx context.Context, query string, snippets []string) string
	}
)

type Components struct {
	Searcher   Searcher
	Fetcher    Fetcher
	Extractor  Extractor
	Summarizer Summarizer
	Tables     TableSynthesizer
}

type Config struct {
	MaxResults int
	// Concurrency bounds parallel fetch and extract tasks. Values below 2
	// keep the run strictly sequential.
	Concurrency int
}

// Observer receives each step log entry as it is appended.
type Observer func(step string)

type Option func(*Pipeline)

func WithObserver(fn Observer) Option {
	return func(p *Pipeline) { p.observer = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// Pipeline sequences search, fetch, extract, summarize and tabulate.
// It holds no per-run state and may be shared between goroutines.
type Pipeline struct {
	c        Components
	cfg      Config
	observer Observer
	log      *slog.Logger
}

func New(c Components, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = search.DefaultMaxResults
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	p := &Pipeline{c: c, cfg: cfg, log: logger.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunObserved is Run with obs receiving this call's steps in addition to
// the pipeline's own observer.
func (p *Pipeline) RunObserved(ctx context.Context, query string, obs Observer) (*Result, error) {
	cp := *p
	if prev := p.observer; prev != nil && obs != nil {
		cp.observer = func(step string) {
			prev(step)
			obs(step)
		}
	} else if obs != nil {
		cp.observer = obs
	}
	return cp.Run(ctx, query)
}

// run is the mutable state of one Run call.
type run struct {
	p      *Pipeline
	log    *slog.Logger
	result *Result
	obs    Observer
}

func (r *run) step(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.result.Steps = append(r.result.Steps, msg)
	r.log.Info(msg)
	if r.obs != nil {
		r.obs(msg)
	}
}

// Run executes one research run. The only error is ErrEmptyQuery: degraded
// searches, fetches and summaries are reported inside the Result.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	id := uuid.NewString()
	r := &run{
		p:   p,
		log: p.log.With("run_id", id),
		obs: p.observer,
		result: &Result{
			RunID:     id,
			Query:     query,
			StartedAt: time.Now().UTC(),
		},
	}
	res := r.result

	r.step("Step 1: Planning the task...")

	found := p.c.Searcher.Search(ctx, query, p.cfg.MaxResults)
	if found.Failed() {
		r.log.Warn("search failed", "error", found.Err)
	}
	res.Links = found.Links()
	r.step("Step 2: Searching the web... found %d relevant links.", len(res.Links))

	r.step("Step 3: Crawling webpages...")
	res.Pages = r.fetchAll(ctx, found)

	r.step("Step 4: Extracting information...")
	res.Extracted = r.extractAll(res.Pages)

	snippets := okTexts(res.Extracted)
	r.log.Debug("extracted snippets", "ok", len(snippets), "failed", len(res.Extracted)-len(snippets))

	r.step("Step 5: Generating AI summary from extracted data...")
	res.Insights = p.c.Summarizer.Summarize(ctx, query, snippets)

	r.step("Step 6: Building comparison table (if applicable)...")
	res.ComparisonTable = p.c.Tables.Synthesize(ctx, query, snippets)

	r.step("Step 7: (Future) Generating PDF report...")
	r.step("Step 8: (Future) Sending report via email...")

	res.Status = StatusSuccess
	res.Duration = time.Since(res.StartedAt)
	r.log.Info("research run finished", "links", len(res.Links), "duration", res.Duration)
	return res, nil
}

func (r *run) fetchAll(ctx context.Context, found search.Result) []PageRecord {
	links := found.Links()
	pages := make([]PageRecord, len(links))
	if found.Failed() {
		for i, link := range links {
			pages[i] = PageRecord{URL: link, Raw: Failed(fmt.Sprintf("Error fetching %s: no URL to fetch", link))}
		}
		return pages
	}

	r.each(len(links), func(i int) {
		pages[i] = PageRecord{URL: links[i], Raw: r.p.c.Fetcher.Fetch(ctx, links[i])}
	}, func(i int, p any) {
		pages[i] = PageRecord{URL: links[i], Raw: Failed(fmt.Sprintf("Error fetching %s: %v", links[i], p))}
	})
	return pages
}

func (r *run) extractAll(pages []PageRecord) []ExtractedItem {
	items := make([]ExtractedItem, len(pages))
	r.each(len(pages), func(i int) {
		page := pages[i]
		if page.Raw.Failed() {
			items[i] = ExtractedItem{URL: page.URL, Text: page.Raw}
			return
		}
		items[i] = ExtractedItem{URL: page.URL, Text: r.p.c.Extractor.Extract(page.Raw.Content)}
	}, func(i int, p any) {
		items[i] = ExtractedItem{URL: pages[i].URL, Text: Failed(fmt.Sprintf("Error during extraction: %v", p))}
	})
	return items
}

// each runs task for indexes 0..n-1, at most Concurrency at a time. A task
// that panics is handed to recovered and does not affect its siblings.
func (r *run) each(n int, task func(i int), recovered func(i int, p any)) {
	safe := func(i int) {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("task panicked", "index", i, "panic", p)
				recovered(i, p)
			}
		}()
		task(i)
	}

	if r.p.cfg.Concurrency < 2 || n < 2 {
		for i := 0; i < n; i++ {
			safe(i)
		}
		return
	}

	sem := make(chan struct{}, r.p.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			safe(i)
		}(i)
	}
	wg.Wait()
}
