package search

import (
	"context"
	"fmt"
	"time"
)

// TavilyEngine calls the Tavily search API. This is the default engine;
// Options may set "search_depth" ("basic" or "advanced").
type TavilyEngine struct {
	base
	apiKey  string
	baseURL string
	depth   string
}

func NewTavilyEngine(config EngineConfig) (Engine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("tavily: api key missing: %w", ErrNotConfigured)
	}
	return &TavilyEngine{
		base:    newBase(config, "tavily", 30*time.Second),
		apiKey:  config.APIKey,
		baseURL: orDefault(config.BaseURL, "https://api.tavily.com"),
		depth:   config.option("search_depth", "basic"),
	}, nil
}

type tavilyResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Published string  `json:"published_date,omitempty"`
}

func (e *TavilyEngine) Search(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()

	var reply struct {
		Results []tavilyResult `json:"results"`
	}
	err := e.postJSON(ctx, e.baseURL+"/search", nil, map[string]any{
		"api_key":        e.apiKey,
		"query":          query,
		"search_depth":   e.depth,
		"include_answer": false,
		"include_images": false,
		"max_results":    limit,
	}, &reply)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	hits := make([]Hit, 0, len(reply.Results))
	for _, r := range reply.Results {
		h := Hit{Title: r.Title, URL: r.URL, Snippet: r.Content, Source: e.name, RetrievedAt: now, Score: r.Score}
		if t, err := time.Parse(time.RFC3339, r.Published); err == nil {
			h.PublishedAt = t
		}
		hits = append(hits, h)
	}
	return e.response(query, hits, start), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
