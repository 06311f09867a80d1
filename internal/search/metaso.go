package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MetasoEngine calls the Metaso web search tool over its MCP JSON-RPC endpoint.
type MetasoEngine struct {
	base
	apiKey  string
	baseURL string
}

func NewMetasoEngine(config EngineConfig) (Engine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("metaso: api key missing: %w", ErrNotConfigured)
	}
	return &MetasoEngine{
		base:    newBase(config, "metaso", 30*time.Second),
		apiKey:  config.APIKey,
		baseURL: orDefault(config.BaseURL, "https://metaso.cn/api/mcp"),
	}, nil
}

type rpcReply struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// text joins the text parts of a tools/call result.
func (r rpcReply) text() string {
	var sb strings.Builder
	for _, c := range r.Result.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func (e *MetasoEngine) Search(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()

	var reply rpcReply
	err := e.postJSON(ctx, e.baseURL, map[string]string{"Authorization": "Bearer " + e.apiKey}, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "metaso_web_search",
			"arguments": map[string]any{"q": query, "size": limit, "scope": "webpage"},
		},
	}, &reply)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("metaso API error: %s", reply.Error.Message)
	}

	text := reply.text()
	if text == "" {
		return e.response(query, nil, start), nil
	}
	var items []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet,omitempty"`
	}
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("metaso returned unstructured content: %w", err)
	}

	now := time.Now()
	hits := make([]Hit, 0, len(items))
	for _, it := range items {
		hits = append(hits, Hit{Title: it.Title, URL: it.URL, Snippet: it.Snippet, Source: e.name, RetrievedAt: now})
	}
	return e.response(query, hits, start), nil
}
