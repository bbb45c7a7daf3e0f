package index

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPgVector(t *testing.T, dim int) (*PgVector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p, err := NewPgVector(db, "kb_vectors", dim)
	require.NoError(t, err)
	return p, mock
}

func TestNewPgVector_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPgVector(db, "kb; DROP TABLE users", 2)
	assert.Error(t, err)
	_, err = NewPgVector(db, "kb_vectors", 0)
	assert.Error(t, err)
}

func TestPgVector_Migrate(t *testing.T) {
	p, mock := newMockPgVector(t, 384)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kb_vectors")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVector_PublishAndSearch(t *testing.T) {
	p, mock := newMockPgVector(t, 2)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kb_vectors")).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kb_vectors (ordinal, embedding)")).
		WithArgs(int64(0), "[1,0]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kb_vectors (ordinal, embedding)")).
		WithArgs(int64(1), "[0,0.5]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.Publish(ctx, [][]float32{{1, 0}, {0, 0.5}}))
	assert.Equal(t, 2, p.Len())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ordinal, embedding <-> $1 AS distance FROM kb_vectors")).
		WithArgs("[1,0]", int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"ordinal", "distance"}).
			AddRow(0, 0.0).
			AddRow(1, 1.118))

	got, err := p.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []Neighbor{{Ordinal: 0, Distance: 0}, {Ordinal: 1, Distance: 1.118}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVector_PublishRollsBackOnError(t *testing.T) {
	p, mock := newMockPgVector(t, 1)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kb_vectors")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kb_vectors")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := p.Publish(context.Background(), [][]float32{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, p.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVector_Refresh(t *testing.T) {
	p, mock := newMockPgVector(t, 3)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM kb_vectors")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 7, p.Len())
	assert.Equal(t, 3, p.Dim())
}

func TestPgVector_SearchEmptySkipsQuery(t *testing.T) {
	p, mock := newMockPgVector(t, 2)

	got, err := p.Search(context.Background(), []float32{1, 1}, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatEmbedding(t *testing.T) {
	assert.Equal(t, "[0.25,-1,3]", formatEmbedding([]float32{0.25, -1, 3}))
	assert.Equal(t, "[]", formatEmbedding(nil))
}
