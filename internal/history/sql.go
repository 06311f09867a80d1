package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect holds what differs between the supported databases.
type dialect struct {
	name string
	// contains is a case-sensitive substring predicate over the query column.
	contains string
	// returning inserts with RETURNING id instead of LastInsertId.
	returning bool
	dollar    bool
}

// bind rewrites ? placeholders into $n for dialects that need it.
func (d dialect) bind(q string) string {
	if !d.dollar {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// sqlStore implements Store over database/sql.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	mu  sync.RWMutex
	now func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *sqlStore {
	return &sqlStore{db: db, d: d, now: time.Now}
}

func (s *sqlStore) Save(ctx context.Context, p SaveParams) (int64, error) {
	if err := ValidateRating(p.Rating); err != nil {
		return 0, err
	}
	links := p.Links
	if links == nil {
		links = []string{}
	}
	extracted := p.Extracted
	if extracted == nil {
		extracted = []Snippet{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := `INSERT INTO reports (query, insights, links, extracted, comparison_table, created_at, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	args := []any{p.Query, p.Insights, toJSON(links), toJSON(extracted), p.ComparisonTable,
		s.now().UTC().Format(timeLayout), p.Rating}

	if s.d.returning {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.d.bind(q+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("save report: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, s.d.bind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	return id, nil
}

func (s *sqlStore) UpdateRating(ctx context.Context, id int64, rating int) error {
	if err := ValidateRating(rating); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.d.bind(`UPDATE reports SET rating = ? WHERE id = ?`), rating, id)
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (s *sqlStore) ListRecent(ctx context.Context, limit int, filter string) ([]string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT query FROM reports ORDER BY created_at DESC, id DESC LIMIT ?`
	args := []any{limit}
	if filter != "" {
		q = `SELECT query FROM reports WHERE ` + s.d.contains + ` ORDER BY created_at DESC, id DESC LIMIT ?`
		args = []any{filter, limit}
	}

	rows, err := s.db.QueryContext(ctx, s.d.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	queries := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, fmt.Errorf("list reports: %w", err)
		}
		queries = append(queries, query)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return queries, nil
}

const selectReport = `SELECT id, query, insights, links, extracted, comparison_table, created_at, rating FROM reports`

func (s *sqlStore) GetByQuery(ctx context.Context, query string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.d.bind(selectReport+` WHERE query = ? ORDER BY created_at DESC, id DESC LIMIT 1`), query)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report by query: %w", err)
	}
	return r, nil
}

func (s *sqlStore) Get(ctx context.Context, id int64) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.d.bind(selectReport+` WHERE id = ?`), id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *sqlStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("clear reports: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func scanReport(row *sql.Row) (*Report, error) {
	var r Report
	var links, extracted, createdAt string
	var table sql.NullString
	if err := row.Scan(&r.ID, &r.Query, &r.Insights, &links, &extracted, &table, &createdAt, &r.Rating); err != nil {
		return nil, err
	}
	r.ComparisonTable = table.String
	if err := fromJSON(links, &r.Links); err != nil {
		return nil, fmt.Errorf("decode links of report %d: %w", r.ID, err)
	}
	if err := fromJSON(extracted, &r.Extracted); err != nil {
		return nil, fmt.Errorf("decode extracted of report %d: %w", r.ID, err)
	}
	if r.Links == nil {
		r.Links = []string{}
	}
	if r.Extracted == nil {
		r.Extracted = []Snippet{}
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func fromJSON(data string, v any) error {
	if data == "" || data == "[]" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
