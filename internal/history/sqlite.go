package history

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{name: "sqlite", contains: "instr(query, ?) > 0"}

// SQLiteStore keeps reports in a local SQLite file.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			query             TEXT NOT NULL,
			insights          TEXT NOT NULL DEFAULT '',
			links             TEXT NOT NULL DEFAULT '[]',
			extracted         TEXT NOT NULL DEFAULT '[]',
			comparison_table  TEXT,
			created_at        TEXT NOT NULL,
			rating            INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
		CREATE INDEX IF NOT EXISTS idx_reports_query ON reports(query);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteStore{sqlStore: newSQLStore(db, sqliteDialect)}, nil
}

// busyTimeoutMS is how long a writer waits on a locked file, e.g. while
// serve and a CLI command share the database.
const busyTimeoutMS = 5000

// sqliteDSN attaches connection pragmas to path. The driver applies them to
// every pooled connection, not just the first.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	return path + "?" + q.Encode()
}
