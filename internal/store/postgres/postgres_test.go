package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pg "pulsefeed/internal/store/postgres"
	"pulsefeed/internal/store"
)

func TestStore_FindByURL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	body, _ := json.Marshal(map[string]any{"lang": "en"})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, body FROM documents WHERE collection = $1 AND url = $2")).
		WithArgs("feeds", "https://example.com/rss").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow(int64(1), body))

	s := pg.New(db)
	doc, err := s.FindByURL(context.Background(), "feeds", "https://example.com/rss")
	require.NoError(t, err)
	assert.Equal(t, "en", doc["lang"])
	assert.Equal(t, int64(1), doc.ID())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByURL_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, body FROM documents")).
		WithArgs("feeds", "https://missing.example").
		WillReturnError(errors.New("sql: no rows in result set"))

	s := pg.New(db)
	_, err = s.FindByURL(context.Background(), "feeds", "https://missing.example")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("articles", "https://example.com/a1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	s := pg.New(db)
	id, err := s.Upsert(context.Background(), "articles", "https://example.com/a1", store.Document{"title": "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindOneAndUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	body, _ := json.Marshal(map[string]any{"times_seen": float64(1)})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, body FROM documents WHERE collection = $1 AND url = $2 FOR UPDATE")).
		WithArgs("articles", "https://example.com/a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).AddRow(int64(1), body))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET body = $1 WHERE collection = $2 AND url = $3")).
		WithArgs(sqlmock.AnyArg(), "articles", "https://example.com/a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := pg.New(db)
	doc, err := s.FindOneAndUpdate(context.Background(), "articles", "https://example.com/a1", store.Update{
		Set: map[string]any{"contents": "<html></html>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", doc["contents"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindOneAndUpdate_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, body FROM documents")).
		WithArgs("articles", "https://missing.example").
		WillReturnError(errors.New("sql: no rows in result set"))
	mock.ExpectRollback()

	s := pg.New(db)
	_, err = s.FindOneAndUpdate(context.Background(), "articles", "https://missing.example", store.Update{})
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE collection = $1 AND url = $2")).
		WithArgs("images", "https://example.com/i.jpg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := pg.New(db)
	err = s.Delete(context.Background(), "images", "https://example.com/i.jpg")
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NextSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sequences")).
		WithArgs("article_id").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(0)))

	s := pg.New(db)
	val, err := s.NextSeq(context.Background(), "article_id")
	require.NoError(t, err)
	assert.Equal(t, int64(0), val)

	assert.NoError(t, mock.ExpectationsWereMet())
}
