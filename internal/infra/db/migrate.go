package db

import (
	"database/sql"
	"fmt"
)

// MigrateUp creates the schema backing store/postgres: every collection
// (feeds, articles, images, sites, recsystems, article_interactions) is
// stored as JSONB documents in a single table keyed by (collection, url),
// plus a sequences table for monotonic counters like article_id. Statements
// are idempotent so MigrateUp is safe to run on every process start.
func MigrateUp(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         BIGSERIAL,
    url        TEXT NOT NULL,
    body       JSONB NOT NULL,
    PRIMARY KEY (collection, id)
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_collection_url ON documents(collection, url)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection_body ON documents USING GIN (body)`,
		`CREATE TABLE IF NOT EXISTS sequences (
    name TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
)`,
		`INSERT INTO sequences (name, value) VALUES ('article_id', 0) ON CONFLICT (name) DO NOTHING`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}

	return nil
}

// MigrateDown drops every table this package creates. Intended for test
// fixtures and local teardown, not for use against a production database.
func MigrateDown(db *sql.DB) error {
	statements := []string{
		`DROP TABLE IF EXISTS documents CASCADE`,
		`DROP TABLE IF EXISTS sequences CASCADE`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("db: migrate down: %w", err)
		}
	}

	return nil
}
