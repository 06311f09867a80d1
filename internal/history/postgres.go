package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{name: "postgres", contains: "strpos(query, ?) > 0", returning: true, dollar: true}

var openDB = sql.Open

// PostgresStore keeps reports in a shared PostgreSQL database.
type PostgresStore struct {
	*sqlStore
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id                BIGSERIAL PRIMARY KEY,
	query             TEXT NOT NULL,
	insights          TEXT NOT NULL DEFAULT '',
	links             TEXT NOT NULL DEFAULT '[]',
	extracted         TEXT NOT NULL DEFAULT '[]',
	comparison_table  TEXT,
	created_at        TEXT NOT NULL,
	rating            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_query ON reports(query);`

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newPostgresStore(db), nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(db, postgresDialect)}
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create reports table: %w", err)
	}
	return nil
}
