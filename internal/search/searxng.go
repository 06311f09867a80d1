package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearXNGEngine queries a self-hosted SearXNG instance through its JSON API.
// Options may set "categories" and "language".
type SearXNGEngine struct {
	base
	baseURL    string
	categories string
	language   string
}

func NewSearXNGEngine(config EngineConfig) (Engine, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("searxng: base url missing: %w", ErrNotConfigured)
	}
	return &SearXNGEngine{
		base:       newBase(config, "searxng", 10*time.Second),
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		categories: config.option("categories", ""),
		language:   config.option("language", ""),
	}, nil
}

func (e *SearXNGEngine) Search(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()

	params := url.Values{"q": {query}, "format": {"json"}}
	if e.categories != "" {
		params.Set("categories", e.categories)
	}
	if e.language != "" {
		params.Set("language", e.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	// SearXNG bot detection rejects requests without a forwarding header.
	req.Header.Set("X-Real-IP", "127.0.0.1")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")

	var reply struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := e.do(req, &reply); err != nil {
		return nil, err
	}

	now := time.Now()
	hits := make([]Hit, 0, len(reply.Results))
	for _, r := range reply.Results {
		if limit > 0 && len(hits) >= limit {
			break
		}
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, Snippet: r.Content, Source: e.name, RetrievedAt: now, Score: r.Score})
	}
	return e.response(query, hits, start), nil
}
