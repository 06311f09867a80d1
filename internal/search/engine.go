package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Engine is one web search backend.
type Engine interface {
	Name() string
	Type() string
	Search(ctx context.Context, query string, limit int) (*Response, error)
	IsEnabled() bool
	Priority() int
}

type EngineFactory func(config EngineConfig) (Engine, error)

type EngineConfig struct {
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	APIKey   string                 `yaml:"api_key,omitempty"`
	BaseURL  string                 `yaml:"base_url,omitempty"`
	Enabled  bool                   `yaml:"enabled"`
	Priority int                    `yaml:"priority"`
	Options  map[string]interface{} `yaml:"options,omitempty"`
}

// option reads a string option, falling back to def.
func (c EngineConfig) option(key, def string) string {
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

const userAgent = "InsightLoop/1.0"

// base carries the identity every engine reports to the Manager.
type base struct {
	name     string
	typ      string
	enabled  bool
	priority int
	client   *http.Client
}

func newBase(config EngineConfig, typ string, timeout time.Duration) base {
	return base{
		name:     config.Name,
		typ:      typ,
		enabled:  config.Enabled,
		priority: config.Priority,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b base) Name() string    { return b.name }
func (b base) Type() string    { return b.typ }
func (b base) IsEnabled() bool { return b.enabled }
func (b base) Priority() int   { return b.priority }

func (b base) response(query string, hits []Hit, start time.Time) *Response {
	return &Response{Query: query, Hits: hits, Engine: b.name, Duration: time.Since(start)}
}

// postJSON sends payload as JSON and decodes a 200 reply into out.
func (b base) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return b.do(req, out)
}

func (b base) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", b.typ, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", b.typ, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
