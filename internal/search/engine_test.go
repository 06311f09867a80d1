package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pltanton/insightloop/internal/config"
)

func configWithEngines(engines ...config.SearchEngineConfig) config.SearchConfig {
	return config.SearchConfig{MaxResults: 5, Engines: engines}
}

func TestTavilyEngineSearch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Dropbox pricing","url":"https://a.com","content":"plans","score":0.9},
			{"title":"Box pricing","url":"https://b.com","content":"tiers","score":0.8,"published_date":"2024-01-02T03:04:05Z"}
		]}`))
	}))
	defer srv.Close()

	engine, err := NewTavilyEngine(EngineConfig{Name: "tavily", APIKey: "tvly-x", BaseURL: srv.URL, Enabled: true})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	resp, err := engine.Search(context.Background(), "Compare Dropbox vs Box pricing", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got["api_key"] != "tvly-x" || got["query"] != "Compare Dropbox vs Box pricing" || got["max_results"] != float64(5) {
		t.Fatalf("unexpected request body: %#v", got)
	}
	if len(resp.Hits) != 2 || resp.Hits[0].URL != "https://a.com" || resp.Hits[1].PublishedAt.IsZero() {
		t.Fatalf("unexpected hits: %#v", resp.Hits)
	}
}

func TestTavilyEngineStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	engine, _ := NewTavilyEngine(EngineConfig{Name: "tavily", APIKey: "k", BaseURL: srv.URL, Enabled: true})
	if _, err := engine.Search(context.Background(), "q", 5); err == nil {
		t.Fatalf("expected error for 401")
	}
}

func TestTavilyRequiresAPIKey(t *testing.T) {
	if _, err := NewTavilyEngine(EngineConfig{Name: "tavily"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSearXNGEngineSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" || r.URL.Query().Get("q") != "widgets" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"results":[{"url":"https://1.com"},{"url":"https://2.com"},{"url":"https://3.com"}]}`))
	}))
	defer srv.Close()

	engine, err := NewSearXNGEngine(EngineConfig{Name: "searxng", BaseURL: srv.URL + "/", Enabled: true})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	resp, err := engine.Search(context.Background(), "widgets", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("expected limit to cap hits at 2, got %d", len(resp.Hits))
	}
}

func TestMetasoEngineParsesToolContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mk" {
			t.Errorf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"result":{"content":[{"type":"text","text":"[{\"title\":\"t\",\"url\":\"https://m.com\"}]"}]}}`))
	}))
	defer srv.Close()

	engine, _ := NewMetasoEngine(EngineConfig{Name: "metaso", APIKey: "mk", BaseURL: srv.URL, Enabled: true})
	resp, err := engine.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].URL != "https://m.com" {
		t.Fatalf("unexpected hits: %#v", resp.Hits)
	}
}

type stubEngine struct {
	name     string
	priority int
	resp     *Response
	err      error
	calls    *int
}

func (s stubEngine) Name() string    { return s.name }
func (s stubEngine) Type() string    { return "stub" }
func (s stubEngine) IsEnabled() bool { return true }
func (s stubEngine) Priority() int   { return s.priority }
func (s stubEngine) Search(context.Context, string, int) (*Response, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.resp, s.err
}

func TestManagerFallsBackByPriority(t *testing.T) {
	m, _ := NewManager(configWithEngines(), NewRegistry())
	var secondCalls int
	m.AddEngineInstance(stubEngine{name: "first", priority: 1, err: errors.New("down")})
	m.AddEngineInstance(stubEngine{name: "second", priority: 2, resp: hits("https://ok.com"), calls: &secondCalls})

	resp, err := m.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if secondCalls != 1 || resp.Hits[0].URL != "https://ok.com" {
		t.Fatalf("expected fallback to second engine, got %#v", resp)
	}
}

func TestManagerReturnsLastError(t *testing.T) {
	m, _ := NewManager(configWithEngines(), NewRegistry())
	m.AddEngineInstance(stubEngine{name: "only", priority: 1, err: errors.New("quota exceeded")})

	if _, err := m.Search(context.Background(), "q", 5); err == nil {
		t.Fatalf("expected error")
	}
}

func TestManagerSkipsUnconfiguredEngines(t *testing.T) {
	m, err := NewManager(configWithEngines(
		config.SearchEngineConfig{Name: "tavily", Type: "tavily", Enabled: true},
		config.SearchEngineConfig{Name: "searxng", Type: "searxng", Enabled: true, BaseURL: "http://searx"},
	), NewRegistry())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	names := m.ListEngines()
	if len(names) != 1 || names[0] != "searxng" {
		t.Fatalf("expected only searxng, got %v", names)
	}
}

func TestManagerSearchAllDeduplicates(t *testing.T) {
	m, _ := NewManager(configWithEngines(), NewRegistry())
	m.AddEngineInstance(stubEngine{name: "a", priority: 1, resp: hits("https://x.com", "https://y.com")})
	m.AddEngineInstance(stubEngine{name: "b", priority: 2, resp: hits("https://y.com", "https://z.com")})

	resp, err := m.SearchAll(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("search all: %v", err)
	}
	if len(resp.Combined) != 3 || resp.Combined[0].URL != "https://x.com" || resp.Combined[2].URL != "https://z.com" {
		t.Fatalf("unexpected combined hits: %#v", resp.Combined)
	}
}

func TestManagerStrategyAllMergesEngines(t *testing.T) {
	cfg := configWithEngines()
	cfg.Strategy = StrategyAll
	m, _ := NewManager(cfg, NewRegistry())
	m.AddEngineInstance(stubEngine{name: "a", priority: 1, resp: hits("https://x.com", "https://y.com")})
	m.AddEngineInstance(stubEngine{name: "b", priority: 2, err: errors.New("down")})
	m.AddEngineInstance(stubEngine{name: "c", priority: 3, resp: hits("https://y.com", "https://z.com")})

	res := NewProvider(m).Search(context.Background(), "q", 5)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	want := []string{"https://x.com", "https://y.com", "https://z.com"}
	if strings.Join(res.URLs, ",") != strings.Join(want, ",") {
		t.Fatalf("urls = %v, want %v", res.URLs, want)
	}
}

func TestManagerStrategyAllFailsWhenEveryEngineFails(t *testing.T) {
	cfg := configWithEngines()
	cfg.Strategy = StrategyAll
	m, _ := NewManager(cfg, NewRegistry())
	m.AddEngineInstance(stubEngine{name: "a", priority: 1, err: errors.New("quota exceeded")})
	m.AddEngineInstance(stubEngine{name: "b", priority: 2, err: errors.New("down")})

	res := NewProvider(m).Search(context.Background(), "q", 5)
	if !res.Failed() {
		t.Fatalf("expected failed search, got %v", res.URLs)
	}
	links := res.Links()
	if len(links) != 1 || !strings.HasPrefix(links[0], ErrorPrefix) || !strings.Contains(links[0], "quota exceeded") {
		t.Fatalf("unexpected links %v", links)
	}
}

func TestRegistryResolvesTypeFromName(t *testing.T) {
	r := NewRegistry()
	engine, err := r.CreateEngine(EngineConfig{Name: "SearXNG", BaseURL: "http://searx.local", Enabled: true})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if engine.Type() != "searxng" || engine.Name() != "SearXNG" {
		t.Fatalf("unexpected engine %s/%s", engine.Type(), engine.Name())
	}

	_, err = r.CreateEngine(EngineConfig{Name: "x", Type: "bing"})
	if err == nil || !strings.Contains(err.Error(), "known: metaso, searxng, tavily") {
		t.Fatalf("expected unknown type error listing known types, got %v", err)
	}
}
