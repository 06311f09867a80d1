package history

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return newPostgresStore(db), mock
}

func TestPostgresBind(t *testing.T) {
	got := postgresDialect.bind("SELECT query FROM reports WHERE strpos(query, ?) > 0 LIMIT ?")
	want := "SELECT query FROM reports WHERE strpos(query, $1) > 0 LIMIT $2"
	if got != want {
		t.Fatalf("bind = %q, want %q", got, want)
	}
	if sqliteDialect.bind("a = ?") != "a = ?" {
		t.Fatalf("sqlite must keep ? placeholders")
	}
}

func TestPostgresSaveReturnsID(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO reports .* RETURNING id`).
		WithArgs("q", "• x", `["https://a.com"]`, `[{"url":"https://a.com","text":"t"}]`, "", sqlmock.AnyArg(), 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.Save(ctx, SaveParams{
		Query:     "q",
		Insights:  "• x",
		Links:     []string{"https://a.com"},
		Extracted: []Snippet{{URL: "https://a.com", Text: "t"}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresSaveError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO reports`).WillReturnError(errors.New("connection reset"))

	if _, err := s.Save(context.Background(), SaveParams{Query: "q"}); err == nil {
		t.Fatalf("expected save error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpdateRatingNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE reports SET rating = \$1 WHERE id = \$2`).
		WithArgs(4, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdateRating(context.Background(), 7, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresListRecentFilter(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT query FROM reports WHERE strpos\(query, \$1\) > 0 ORDER BY created_at DESC, id DESC LIMIT \$2`).
		WithArgs("Box", 10).
		WillReturnRows(sqlmock.NewRows([]string{"query"}).AddRow("Compare Dropbox vs Box pricing").AddRow("Box review"))

	got, err := s.ListRecent(context.Background(), 0, "Box")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Compare Dropbox vs Box pricing", "Box review"}) {
		t.Fatalf("unexpected list %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresListRecentRowsErr(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"query"}).AddRow("a").AddRow("b")
	rows.RowError(1, errors.New("row error"))
	mock.ExpectQuery(`SELECT query FROM reports`).WillReturnRows(rows)

	if _, err := s.ListRecent(context.Background(), 5, ""); err == nil {
		t.Fatalf("expected rows error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresGetByQuery(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "query", "insights", "links", "extracted", "comparison_table", "created_at", "rating"}

	mock.ExpectQuery(`SELECT id, query, insights, links, extracted, comparison_table, created_at, rating FROM reports WHERE query = \$1`).
		WithArgs("q").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), "q", "• x", `["https://a.com"]`,
			`[{"url":"https://a.com","text":"t"}]`, nil, created.Format(timeLayout), 2))

	got, err := s.GetByQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != 3 || got.Rating != 2 || got.ComparisonTable != "" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected report %#v", got)
	}
	if !reflect.DeepEqual(got.Extracted, []Snippet{{URL: "https://a.com", Text: "t"}}) {
		t.Fatalf("unexpected extracted %#v", got.Extracted)
	}

	mock.ExpectQuery(`FROM reports WHERE query = \$1`).WithArgs("absent").
		WillReturnRows(sqlmock.NewRows(cols))
	missing, err := s.GetByQuery(context.Background(), "absent")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %#v, %v", missing, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresClearAll(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM reports`).WillReturnResult(sqlmock.NewResult(0, 3))

	if err := s.ClearAll(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrateCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS reports`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
