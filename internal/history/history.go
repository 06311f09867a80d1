// Package history persists completed research runs and their ratings.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/research"
)

var (
	ErrNotFound      = errors.New("report not found")
	ErrInvalidRating = errors.New("rating must be between 0 and 5")
)

const (
	DefaultListLimit = 10
	MaxRating        = 5
)

// Snippet is one persisted extracted item.
type Snippet struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Failed bool   `json:"failed,omitempty"`
}

// Report is one stored run. Rating 0 means unrated.
type Report struct {
	ID              int64     `json:"id"`
	Query           string    `json:"query"`
	Insights        string    `json:"insights"`
	Links           []string  `json:"links"`
	Extracted       []Snippet `json:"extracted"`
	ComparisonTable string    `json:"comparison_table"`
	CreatedAt       time.Time `json:"created_at"`
	Rating          int       `json:"rating"`
}

type SaveParams struct {
	Query           string
	Insights        string
	Links           []string
	Extracted       []Snippet
	ComparisonTable string
	Rating          int
}

// Store is the report history. Every call is atomic on its own.
type Store interface {
	Save(ctx context.Context, p SaveParams) (int64, error)
	UpdateRating(ctx context.Context, id int64, rating int) error
	// ListRecent returns up to limit queries, newest first, whose text
	// contains filter (case-sensitive). limit <= 0 means DefaultListLimit.
	ListRecent(ctx context.Context, limit int, filter string) ([]string, error)
	// GetByQuery returns the newest report for exactly query, or nil.
	GetByQuery(ctx context.Context, query string) (*Report, error)
	Get(ctx context.Context, id int64) (*Report, error)
	ClearAll(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

// ParamsFromResult converts a finished run into SaveParams.
func ParamsFromResult(res *research.Result, rating int) SaveParams {
	extracted := make([]Snippet, 0, len(res.Extracted))
	for _, it := range res.Extracted {
		extracted = append(extracted, Snippet{URL: it.URL, Text: it.Text.String(), Failed: it.Text.Failed()})
	}
	return SaveParams{
		Query:           res.Query,
		Insights:        res.Insights,
		Links:           res.Links,
		Extracted:       extracted,
		ComparisonTable: res.ComparisonTable,
		Rating:          rating,
	}
}

// ValidateRating accepts 0 (unrated) through MaxRating.
func ValidateRating(r int) error {
	if r < 0 || r > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, r)
	}
	return nil
}
