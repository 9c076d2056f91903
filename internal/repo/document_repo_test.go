package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
)

func TestDocumentRepoDelete(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewDocumentRepo(db)
	err = repo.Delete(context.Background(), "doc-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepoDeleteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDocumentRepo(db)
	err = repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentRepoListIDsByFilter(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("doc-1").AddRow("doc-2")
	mock.ExpectQuery(`SELECT id FROM documents`).
		WithArgs("p-1").
		WillReturnRows(rows)

	repo := NewDocumentRepo(db)
	ids, err := repo.ListIDsByFilter(context.Background(), "p-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, ids)
}

func TestDocumentRepoListEmptyAllowlist(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewDocumentRepo(db)
	// A non-nil empty allowlist means "authorized for nothing" and must
	// short-circuit without touching the database.
	docs, err := repo.List(context.Background(), ListDocumentsOpts{IDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestEmbeddingRepoCountByDocument(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM embeddings WHERE document_id = \$1`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := NewEmbeddingRepo(db)
	count, err := repo.CountByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
