package history

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/research"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "insightloop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(query string) SaveParams {
	return SaveParams{
		Query:    query,
		Insights: "• Box costs more per seat",
		Links:    []string{"https://a.com", "https://b.com"},
		Extracted: []Snippet{
			{URL: "https://a.com", Text: "Dropbox Plus $11.99"},
			{URL: "https://b.com", Text: "Error fetching https://b.com: timeout", Failed: true},
		},
		ComparisonTable: "| Tool | Price |\n|---|---|\n| Box | $15 |",
	}
}

func TestSaveAndGetByQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sample("Compare Dropbox vs Box pricing")
	id, err := s.Save(ctx, p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	got, err := s.GetByQuery(ctx, p.Query)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected report")
	}
	if got.ID != id || got.Insights != p.Insights || got.ComparisonTable != p.ComparisonTable || got.Rating != 0 {
		t.Fatalf("unexpected report %#v", got)
	}
	if !reflect.DeepEqual(got.Links, p.Links) {
		t.Fatalf("links = %#v, want %#v", got.Links, p.Links)
	}
	if !reflect.DeepEqual(got.Extracted, p.Extracted) {
		t.Fatalf("extracted = %#v, want %#v", got.Extracted, p.Extracted)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Fatalf("unexpected created_at %v", got.CreatedAt)
	}
}

func TestSaveIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var last int64
	for i := 0; i < 3; i++ {
		id, err := s.Save(ctx, sample("q"))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
}

func TestGetByQueryReturnsNewestExactMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := sample("widgets")
	first.Insights = "old"
	second := sample("widgets")
	second.Insights = "new"
	other := sample("widgets and gadgets")

	for _, p := range []SaveParams{first, second, other} {
		if _, err := s.Save(ctx, p); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.GetByQuery(ctx, "widgets")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Insights != "new" {
		t.Fatalf("expected newest report, got %q", got.Insights)
	}

	missing, err := s.GetByQuery(ctx, "Widgets")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for absent query, got %#v, %v", missing, err)
	}
}

func TestUpdateRating(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sample("rated")
	id, _ := s.Save(ctx, p)
	if err := s.UpdateRating(ctx, id, 4); err != nil {
		t.Fatalf("update rating: %v", err)
	}

	got, _ := s.GetByQuery(ctx, "rated")
	if got.Rating != 4 {
		t.Fatalf("expected rating 4, got %d", got.Rating)
	}
	if got.Insights != p.Insights || !reflect.DeepEqual(got.Links, p.Links) {
		t.Fatalf("rating update changed other fields: %#v", got)
	}

	if err := s.UpdateRating(ctx, id+100, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, bad := range []int{-1, 6} {
		if err := s.UpdateRating(ctx, id, bad); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("rating %d: expected ErrInvalidRating, got %v", bad, err)
		}
	}
}

func TestSaveWithRating(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := sample("q")
	p.Rating = 5
	id, err := s.Save(ctx, p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil || got.Rating != 5 {
		t.Fatalf("expected rating 5, got %#v %v", got, err)
	}

	p.Rating = 9
	if _, err := s.Save(ctx, p); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := s.Get(ctx, id+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, q := range []string{"Compare Dropbox vs Box pricing", "best note apps", "Dropbox outage history", "box alternatives"} {
		if _, err := s.Save(ctx, sample(q)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	all, err := s.ListRecent(ctx, 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"box alternatives", "Dropbox outage history", "best note apps", "Compare Dropbox vs Box pricing"}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("list = %v, want %v", all, want)
	}

	limited, _ := s.ListRecent(ctx, 2, "")
	if !reflect.DeepEqual(limited, want[:2]) {
		t.Fatalf("limited list = %v", limited)
	}

	filtered, _ := s.ListRecent(ctx, 10, "Box")
	if !reflect.DeepEqual(filtered, []string{"Compare Dropbox vs Box pricing"}) {
		t.Fatalf("case-sensitive filter = %v", filtered)
	}

	none, _ := s.ListRecent(ctx, 10, "%")
	if len(none) != 0 {
		t.Fatalf("filter must be literal, got %v", none)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, sample("q")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := s.ListRecent(ctx, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
}

func TestParamsFromResult(t *testing.T) {
	res := &research.Result{
		Query: "q",
		Links: []string{"https://a.com", "https://b.com"},
		Extracted: []research.ExtractedItem{
			{URL: "https://a.com", Text: research.Ok("text")},
			{URL: "https://b.com", Text: research.Failed("Error fetching https://b.com: 404")},
		},
		Insights: "• x",
	}
	p := ParamsFromResult(res, 3)
	want := []Snippet{
		{URL: "https://a.com", Text: "text"},
		{URL: "https://b.com", Text: "Error fetching https://b.com: 404", Failed: true},
	}
	if !reflect.DeepEqual(p.Extracted, want) || p.Rating != 3 || p.Query != "q" {
		t.Fatalf("unexpected params %#v", p)
	}
}

func TestOpenSQLite(t *testing.T) {
	s, err := Open(context.Background(), config.HistoryConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "h.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("expected SQLiteStore, got %T", s)
	}
	if _, err := Open(context.Background(), config.HistoryConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSQLitePragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Hold the first connection so the pool has to open a second one.
	first, err := s.db.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer first.Close()
	second, err := s.db.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var timeout int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d: read busy_timeout: %v", i, err)
		}
		if timeout != busyTimeoutMS {
			t.Fatalf("conn %d: busy_timeout = %d, want %d", i, timeout, busyTimeoutMS)
		}
		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("conn %d: read journal_mode: %v", i, err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Fatalf("conn %d: journal_mode = %q, want wal", i, mode)
		}
	}
}
