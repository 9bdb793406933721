// Package postgres implements store.Store over a Postgres "documents" table:
// each collection's rows are JSONB blobs keyed by (collection, url), with a
// sibling "sequences" table backing NextSeq. It is the concrete counterpart
// to store/memory, reached via database/sql + the pgx/v5 stdlib driver so it
// stays testable with DATA-DOG/go-sqlmock (grounded in the teacher's
// internal/infra/adapter/persistence/postgres article/source repositories).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"pulsefeed/internal/store"
)

// Store is a pgx-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New returns a Store backed by db. The caller owns db's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func encode(doc store.Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode document: %w", err)
	}
	return body, nil
}

func decode(id int64, url string, body []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("postgres: decode document: %w", err)
	}
	if doc == nil {
		doc = store.Document{}
	}
	doc["_id"] = id
	doc["url"] = url
	return doc, nil
}

// FindByURL implements store.Store.
func (s *Store) FindByURL(ctx context.Context, collection, url string) (store.Document, error) {
	const query = `SELECT id, body FROM documents WHERE collection = $1 AND url = $2`

	var id int64
	var body []byte
	err := s.db.QueryRowContext(ctx, query, collection, url).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: FindByURL: %w", err)
	}
	return decode(id, url, body)
}

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, collection, url string, doc store.Document) (int64, error) {
	const query = `
INSERT INTO documents (collection, url, body)
VALUES ($1, $2, $3)
ON CONFLICT (collection, url) DO UPDATE SET body = EXCLUDED.body
RETURNING id`

	stored := doc.Clone()
	stored["url"] = url
	delete(stored, "_id")

	body, err := encode(stored)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, collection, url, body).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: Upsert: %w", err)
	}
	return id, nil
}

// FindOneAndUpdate implements store.Store.
func (s *Store) FindOneAndUpdate(ctx context.Context, collection, url string, upd store.Update) (store.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: FindOneAndUpdate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const selectQuery = `SELECT id, body FROM documents WHERE collection = $1 AND url = $2 FOR UPDATE`
	var id int64
	var body []byte
	err = tx.QueryRowContext(ctx, selectQuery, collection, url).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: FindOneAndUpdate: select: %w", err)
	}

	doc, err := decode(id, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range upd.Set {
		doc[k] = v
	}
	for k, delta := range upd.Inc {
		cur, _ := doc[k].(int64)
		doc[k] = cur + delta
	}

	newBody, err := encode(doc)
	if err != nil {
		return nil, err
	}

	const updateQuery = `UPDATE documents SET body = $1 WHERE collection = $2 AND url = $3`
	if _, err := tx.ExecContext(ctx, updateQuery, newBody, collection, url); err != nil {
		return nil, fmt.Errorf("postgres: FindOneAndUpdate: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: FindOneAndUpdate: commit: %w", err)
	}
	return doc, nil
}

// Scan implements store.Store. Filtering happens in Go after fetching every
// document in the collection — acceptable for this store's scale (feeds and
// in-flight articles, not web-scale corpora).
func (s *Store) Scan(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	const query = `SELECT id, url, body FROM documents WHERE collection = $1`

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("postgres: Scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]store.Document, 0, 64)
	for rows.Next() {
		var id int64
		var url string
		var body []byte
		if err := rows.Scan(&id, &url, &body); err != nil {
			return nil, fmt.Errorf("postgres: Scan: row scan: %w", err)
		}
		doc, err := decode(id, url, body)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(doc) {
			result = append(result, doc)
		}
	}
	return result, rows.Err()
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, collection, url string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND url = $2`
	if _, err := s.db.ExecContext(ctx, query, collection, url); err != nil {
		return fmt.Errorf("postgres: Delete: %w", err)
	}
	return nil
}

// NextSeq implements store.Store. The insert-or-increment is a single
// statement so concurrent callers serialize on Postgres's own row lock
// rather than needing an explicit transaction.
func (s *Store) NextSeq(ctx context.Context, name string) (int64, error) {
	const query = `
INSERT INTO sequences (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
RETURNING value - 1`

	var issued int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&issued); err != nil {
		return 0, fmt.Errorf("postgres: NextSeq: %w", err)
	}
	return issued, nil
}
