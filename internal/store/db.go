// Package store persists research plans, finished reports, and their
// evidence in sqlite, either a local file or a remote libsql database.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"oracle/internal/config"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func Open(cfg config.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.DatabaseAuthToken)
	if err != nil {
		return nil, err
	}

	driver := "sqlite"
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") {
		driver = "libsql"
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return database, nil
}

func buildDSN(rawURL, authToken string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("empty database url")
	}

	if strings.HasPrefix(rawURL, "file:") {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}

	if strings.HasPrefix(rawURL, "libsql://") {
		query := parsed.Query()
		if query.Get("authToken") == "" && strings.TrimSpace(authToken) != "" {
			query.Set("authToken", strings.TrimSpace(authToken))
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.String(), nil
}

const schema = `
CREATE TABLE IF NOT EXISTS research_plans (
  query_hash TEXT PRIMARY KEY,
  query      TEXT NOT NULL,
  plan       TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS research_reports (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  query           TEXT NOT NULL,
  report          TEXT NOT NULL,
  sources         TEXT NOT NULL DEFAULT '[]',
  confidence      REAL NOT NULL DEFAULT 0,
  quality_score   REAL,
  iteration_count INTEGER NOT NULL DEFAULT 0,
  created_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS search_results (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  report_id  INTEGER NOT NULL REFERENCES research_reports(id),
  title      TEXT NOT NULL,
  url        TEXT NOT NULL,
  content    TEXT NOT NULL DEFAULT '',
  score      REAL NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_search_results_report ON search_results(report_id);
CREATE INDEX IF NOT EXISTS idx_research_reports_created ON research_reports(created_at);
`

// Migrate applies the schema. Statements are idempotent, so it runs on every
// startup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
