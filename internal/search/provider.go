package search

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxResults caps the number of URLs a search yields.
const DefaultMaxResults = 5

// Searcher is satisfied by *Manager.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*Response, error)
}

// Provider turns engine responses into the ordered URL list a research run
// works from. It never returns an error: failures are carried in Result.Err.
type Provider struct {
	searcher Searcher
}

func NewProvider(searcher Searcher) *Provider {
	return &Provider{searcher: searcher}
}

// Search returns at most maxResults distinct, non-empty URLs in engine order.
func (p *Provider) Search(ctx context.Context, query string, maxResults int) (result Result) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: fmt.Errorf("search panicked: %v", r)}
		}
	}()

	if p.searcher == nil {
		return Result{Err: ErrNoEngine}
	}

	resp, err := p.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return Result{Err: err}
	}
	if resp == nil {
		return Result{URLs: []string{}}
	}

	seen := make(map[string]bool, len(resp.Hits))
	urls := make([]string, 0, maxResults)
	for _, hit := range resp.Hits {
		u := strings.TrimSpace(hit.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == maxResults {
			break
		}
	}
	return Result{URLs: urls}
}
