package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Search    SearchConfig     `yaml:"search"`
	Fetch     FetchConfig      `yaml:"fetch"`
	Extract   ExtractConfig    `yaml:"extract"`
	LLM       LLMConfig        `yaml:"llm"`
	Insight   InsightConfig    `yaml:"insight"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	History   HistoryConfig    `yaml:"history"`
	Server    ServerConfig     `yaml:"server"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// SearchEngineConfig configures one web search engine.
type SearchEngineConfig struct {
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	APIKey   string                 `yaml:"api_key,omitempty"`
	BaseURL  string                 `yaml:"base_url,omitempty"`
	Enabled  bool                   `yaml:"enabled"`
	Priority int                    `yaml:"priority"`
	Options  map[string]interface{} `yaml:"options,omitempty"`
}

// SearchConfig configures the search step. With strategy "first" engines are
// tried in priority order (lowest first) until one returns results; "all"
// queries every engine and merges the hits.
type SearchConfig struct {
	MaxResults int                  `yaml:"max_results"`
	Strategy   string               `yaml:"strategy,omitempty"`
	Engines    []SearchEngineConfig `yaml:"engines"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	// Mode is "http" (plain client) or "browser" (headless Chromium).
	Mode           string        `yaml:"mode"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBytes       int64         `yaml:"max_bytes"`
	UserAgent      string        `yaml:"user_agent,omitempty"`
	SSRFProtection bool          `yaml:"ssrf_protection"`
	// BrowserBin points at a Chromium binary; empty lets rod download one.
	BrowserBin string `yaml:"browser_bin,omitempty"`
	// Stealth masks headless automation fingerprints in browser mode.
	Stealth bool `yaml:"stealth"`
}

// ExtractConfig configures text extraction.
type ExtractConfig struct {
	MaxChars int `yaml:"max_chars"`
	// Format is "text" or "markdown".
	Format string `yaml:"format"`
}

// LLMConfig selects the generative backend.
type LLMConfig struct {
	// Backend is "ollama", "openai" or "anthropic".
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// InsightConfig tunes summarization and table synthesis.
type InsightConfig struct {
	SummaryAttempts  int `yaml:"summary_attempts"`
	MaxCombinedChars int `yaml:"max_combined_chars"`
	MinResponseChars int `yaml:"min_response_chars"`
}

type PipelineConfig struct {
	// Concurrency bounds parallel fetch+extract tasks. 1 keeps runs sequential.
	Concurrency int `yaml:"concurrency"`
}

// HistoryConfig selects the report store.
type HistoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig re-runs a query on a cron schedule and saves each run.
type ScheduleConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Query    string `yaml:"query"`
	Enabled  bool   `yaml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Search: SearchConfig{
			MaxResults: 5,
			Strategy:   "first",
			Engines: []SearchEngineConfig{
				{
					Name:     "tavily",
					Type:     "tavily",
					Enabled:  true,
					Priority: 1,
				},
				{
					Name:     "searxng",
					Type:     "searxng",
					Enabled:  false,
					Priority: 2,
				},
			},
		},
		Fetch: FetchConfig{
			Mode:     "http",
			Timeout:  8 * time.Second,
			MaxBytes: 5 * 1024 * 1024,
			Stealth:  true,
		},
		Extract: ExtractConfig{
			MaxChars: 2000,
			Format:   "text",
		},
		LLM: LLMConfig{
			Backend: "ollama",
			Model:   "llama3.2",
		},
		Insight: InsightConfig{
			SummaryAttempts:  2,
			MaxCombinedChars: 15000,
			MinResponseChars: 10,
		},
		Pipeline: PipelineConfig{
			Concurrency: 1,
		},
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(ConfigDir(), "insightloop.db"),
		},
		Server: ServerConfig{
			Addr: ":8686",
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".insightloop")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".insightloop.yaml")
}

// Load reads the config next to the executable. A missing file yields defaults.
func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads the YAML file at path over DefaultConfig and applies
// environment overrides. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables on values from the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.setEngine("tavily", func(e *SearchEngineConfig) { e.APIKey = v })
	}
	if v := os.Getenv("SEARXNG_URL"); v != "" {
		c.setEngine("searxng", func(e *SearchEngineConfig) {
			e.BaseURL = v
			e.Enabled = true
		})
	}
	if v := os.Getenv("INSIGHTLOOP_BACKEND"); v != "" {
		c.LLM.Backend = v
	}
	if v := os.Getenv("INSIGHTLOOP_MODEL"); v != "" {
		c.LLM.Model = v
	}
	switch c.LLM.Backend {
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	case "ollama":
		if v := os.Getenv("OLLAMA_HOST"); v != "" && c.LLM.BaseURL == "" {
			c.LLM.BaseURL = v
		}
	}
	if v := os.Getenv("INSIGHTLOOP_DB"); v != "" {
		c.History.DSN = v
	}
}

// setEngine applies fn to the engine named name, adding it when absent.
func (c *Config) setEngine(name string, fn func(*SearchEngineConfig)) {
	for i := range c.Search.Engines {
		if c.Search.Engines[i].Name == name {
			fn(&c.Search.Engines[i])
			return
		}
	}
	e := SearchEngineConfig{Name: name, Type: name, Enabled: true, Priority: len(c.Search.Engines) + 1}
	fn(&e)
	c.Search.Engines = append(c.Search.Engines, e)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Search.MaxResults <= 0 {
		problems = append(problems, "search.max_results must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		problems = append(problems, "fetch.timeout must be positive")
	}
	switch c.Search.Strategy {
	case "", "first", "all":
	default:
		problems = append(problems, fmt.Sprintf("search.strategy %q is not first or all", c.Search.Strategy))
	}
	switch c.Fetch.Mode {
	case "http", "browser":
	default:
		problems = append(problems, fmt.Sprintf("fetch.mode %q is not http or browser", c.Fetch.Mode))
	}
	switch c.Extract.Format {
	case "text", "markdown":
	default:
		problems = append(problems, fmt.Sprintf("extract.format %q is not text or markdown", c.Extract.Format))
	}
	if c.Extract.MaxChars <= 0 {
		problems = append(problems, "extract.max_chars must be positive")
	}
	if c.Insight.SummaryAttempts <= 0 {
		problems = append(problems, "insight.summary_attempts must be positive")
	}
	if c.Pipeline.Concurrency <= 0 {
		problems = append(problems, "pipeline.concurrency must be positive")
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("history.driver %q is not sqlite or postgres", c.History.Driver))
	}
	for _, s := range c.Schedules {
		if strings.TrimSpace(s.Query) == "" {
			problems = append(problems, fmt.Sprintf("schedule %q has no query", s.Name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
