package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/logger"
)

// writeConfig writes a config whose history lives in a temp sqlite file.
func writeConfig(t *testing.T) (cfgFile, dbFile string) {
	t.Helper()
	dir := t.TempDir()
	dbFile = filepath.Join(dir, "history.db")
	c := config.DefaultConfig()
	c.History.DSN = dbFile
	cfgFile = filepath.Join(dir, "insightloop.yaml")
	if err := c.Save(cfgFile); err != nil {
		t.Fatalf("save config: %v", err)
	}
	t.Setenv("INSIGHTLOOP_DB", "")
	return cfgFile, dbFile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
		historyFilter = ""
		historyOut = ""
		historyYes = false
		historyLimit = history.DefaultListLimit
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func seed(t *testing.T, dbFile string, queries ...string) {
	t.Helper()
	store, err := history.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	for _, q := range queries {
		if _, err := store.Save(context.Background(), history.SaveParams{Query: q, Insights: "- " + q}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
}

func TestHistoryListAndFilter(t *testing.T) {
	cfgFile, dbFile := writeConfig(t)
	seed(t, dbFile, "Dropbox pricing", "Notion vs Obsidian")

	out, err := execute(t, "history", "list", "--config", cfgFile)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "Dropbox pricing") || !strings.Contains(out, "Notion vs Obsidian") {
		t.Fatalf("unexpected list output: %s", out)
	}

	out, err = execute(t, "history", "list", "--filter", "Notion", "--config", cfgFile)
	if err != nil {
		t.Fatalf("history list --filter: %v", err)
	}
	if strings.Contains(out, "Dropbox") || !strings.Contains(out, "Notion vs Obsidian") {
		t.Fatalf("unexpected filtered output: %s", out)
	}
}

func TestHistoryShowWritesMarkdown(t *testing.T) {
	cfgFile, dbFile := writeConfig(t)
	seed(t, dbFile, "Dropbox pricing")
	outFile := filepath.Join(t.TempDir(), "report.md")

	if _, err := execute(t, "history", "show", "Dropbox pricing", "--out", outFile, "--config", cfgFile); err != nil {
		t.Fatalf("history show: %v", err)
	}
	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "**Query:** Dropbox pricing") {
		t.Fatalf("unexpected report: %s", data)
	}

	if _, err := execute(t, "history", "show", "missing", "--config", cfgFile); err == nil {
		t.Fatalf("expected error for unknown query")
	}
}

func TestHistoryShowFallsBackToNumericQuery(t *testing.T) {
	cfgFile, dbFile := writeConfig(t)
	seed(t, dbFile, "Dropbox pricing", "2024")
	dir := t.TempDir()

	show := func(arg string) string {
		t.Helper()
		outFile := filepath.Join(dir, arg+".md")
		if _, err := execute(t, "history", "show", arg, "--out", outFile, "--config", cfgFile); err != nil {
			t.Fatalf("history show %s: %v", arg, err)
		}
		data, err := os.ReadFile(outFile)
		if err != nil {
			t.Fatalf("read report: %v", err)
		}
		return string(data)
	}

	if got := show("1"); !strings.Contains(got, "**Query:** Dropbox pricing") {
		t.Fatalf("expected report #1 by id, got: %s", got)
	}
	if got := show("2024"); !strings.Contains(got, "**Query:** 2024") {
		t.Fatalf("expected report for query 2024, got: %s", got)
	}
	if _, err := execute(t, "history", "show", "99", "--config", cfgFile); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryRateAndClear(t *testing.T) {
	cfgFile, dbFile := writeConfig(t)
	seed(t, dbFile, "Dropbox pricing")

	if _, err := execute(t, "history", "rate", "1", "4", "--config", cfgFile); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if _, err := execute(t, "history", "rate", "1", "7", "--config", cfgFile); err == nil {
		t.Fatalf("expected invalid rating error")
	}
	if _, err := execute(t, "history", "clear", "--config", cfgFile); err == nil {
		t.Fatalf("expected clear to require --yes")
	}
	if _, err := execute(t, "history", "clear", "--yes", "--config", cfgFile); err != nil {
		t.Fatalf("clear: %v", err)
	}

	store, err := history.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	queries, err := store.ListRecent(context.Background(), 10, "")
	if err != nil || len(queries) != 0 {
		t.Fatalf("expected empty history, got %v %v", queries, err)
	}
}

func TestNewPipelineWithDefaults(t *testing.T) {
	c := config.DefaultConfig()
	c.LLM.BaseURL = "http://127.0.0.1:1"
	p, closers, err := newPipeline(c, logger.Default())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if p == nil || len(closers) != 0 {
		t.Fatalf("unexpected pipeline %v closers %v", p, closers)
	}

	c.LLM.Backend = "gemini"
	if _, _, err := newPipeline(c, logger.Default()); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
