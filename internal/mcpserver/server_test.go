package mcpserver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/research"
)

type fakeRunner struct {
	err error
}

func (f fakeRunner) Run(_ context.Context, query string) (*research.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &research.Result{
		Status:   research.StatusSuccess,
		Query:    query,
		Links:    []string{"https://a.com"},
		Insights: "• Box costs more per seat",
	}, nil
}

func newStore(t *testing.T) history.Store {
	t.Helper()
	s, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestResearchRequiresQuery(t *testing.T) {
	tools := NewTools(fakeRunner{}, nil, nil)
	res, err := tools.Research(context.Background(), call(map[string]any{"query": "  "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for blank query")
	}
}

func TestResearchReturnsMarkdownAndSaves(t *testing.T) {
	store := newStore(t)
	tools := NewTools(fakeRunner{}, store, nil)

	res, err := tools.Research(context.Background(), call(map[string]any{"query": "Dropbox vs Box"}))
	if err != nil || res.IsError {
		t.Fatalf("research failed: %v %+v", err, res)
	}
	md := text(t, res)
	if !strings.Contains(md, "Dropbox vs Box") || !strings.Contains(md, "Box costs more per seat") {
		t.Fatalf("unexpected markdown: %s", md)
	}

	rep, err := store.GetByQuery(context.Background(), "Dropbox vs Box")
	if err != nil || rep == nil {
		t.Fatalf("expected saved report, got %v %v", rep, err)
	}
}

func TestResearchSkipsSaveWhenAsked(t *testing.T) {
	store := newStore(t)
	tools := NewTools(fakeRunner{}, store, nil)

	if _, err := tools.Research(context.Background(), call(map[string]any{"query": "q", "save": false})); err != nil {
		t.Fatalf("research: %v", err)
	}
	queries, err := store.ListRecent(context.Background(), 10, "")
	if err != nil || len(queries) != 0 {
		t.Fatalf("expected nothing saved, got %v %v", queries, err)
	}
}

func TestResearchRunnerErrorIsToolError(t *testing.T) {
	tools := NewTools(fakeRunner{err: errors.New("boom")}, nil, nil)
	res, err := tools.Research(context.Background(), call(map[string]any{"query": "q"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "boom") {
		t.Fatalf("expected tool error mentioning cause, got %+v", res)
	}
}

func TestHistorySearch(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for _, q := range []string{"Dropbox pricing", "Notion vs Obsidian"} {
		if _, err := store.Save(ctx, history.SaveParams{Query: q, Insights: "• " + q}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	tools := NewTools(nil, store, nil)

	res, err := tools.HistorySearch(ctx, call(map[string]any{"filter": "Notion"}))
	if err != nil || res.IsError {
		t.Fatalf("history_search failed: %v %+v", err, res)
	}
	if got := text(t, res); got != "1. Notion vs Obsidian\n" {
		t.Fatalf("unexpected list: %q", got)
	}

	res, _ = tools.HistorySearch(ctx, call(map[string]any{"query": "Dropbox pricing"}))
	if res.IsError || !strings.Contains(text(t, res), "- Dropbox pricing") {
		t.Fatalf("unexpected lookup: %+v", res)
	}

	res, _ = tools.HistorySearch(ctx, call(map[string]any{"query": "missing"}))
	if !res.IsError {
		t.Fatalf("expected tool error for unknown query")
	}
}

func TestHistorySearchWithoutStore(t *testing.T) {
	res, err := NewTools(nil, nil, nil).HistorySearch(context.Background(), call(nil))
	if err != nil || !res.IsError {
		t.Fatalf("expected tool error without store, got %v %+v", err, res)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	if NewServer(NewTools(fakeRunner{}, nil, nil)) == nil {
		t.Fatalf("expected server")
	}
}
