package docstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s, err := NewWithDB(db, DriverPostgres, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, s.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return s, mock
}

var docColumns = []string{"seq", "id", "version", "data"}

func TestRebind(t *testing.T) {
	pg := dialects[DriverPostgres]
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := dialects[DriverSQLite]
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestNewWithDB_UnknownDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewWithDB(db, "mysql")
	assert.Error(t, err)
}

func TestPostgres_Create(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO documents \(collection, id, version, data, created_at, updated_at\) VALUES \(\$1, \$2, 1, \$3, \$4, \$5\)`).
		WithArgs("issues", sqlmock.AnyArg(), `{"title":"Broken door"}`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := s.Create(context.Background(), "issues", Fields{"title": "Broken door"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestPostgres_Get(t *testing.T) {
	s, mock := setupMockStore(t)

	rows := sqlmock.NewRows(docColumns).
		AddRow(int64(7), "01HX", int64(2), []byte(`{"title":"Broken door","createdAt":{"$timestamp":"2024-02-14T09:00:00Z"}}`))
	mock.ExpectQuery(`SELECT seq, id, version, data FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("issues", "01HX").
		WillReturnRows(rows)

	doc, err := s.Get(context.Background(), "issues", "01HX")
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.Seq)
	assert.Equal(t, int64(2), doc.Version)
	assert.Equal(t, "Broken door", doc.Fields["title"])
	_, ok := doc.Fields["createdAt"].(Timestamp)
	assert.True(t, ok)
}

func TestPostgres_GetNotFound(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT seq, id, version, data FROM documents`).
		WithArgs("issues", "missing").
		WillReturnRows(sqlmock.NewRows(docColumns))

	_, err := s.Get(context.Background(), "issues", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_List(t *testing.T) {
	s, mock := setupMockStore(t)

	rows := sqlmock.NewRows(docColumns).
		AddRow(int64(1), "a", int64(1), []byte(`{"title":"one"}`)).
		AddRow(int64(2), "b", int64(1), []byte(`{"title":"two"}`))
	mock.ExpectQuery(`SELECT seq, id, version, data FROM documents WHERE collection = \$1 ORDER BY seq`).
		WithArgs("events").
		WillReturnRows(rows)

	got, err := s.List(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestPostgres_UpdateIfConflict(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seq, id, version, data FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("issues", "a").
		WillReturnRows(sqlmock.NewRows(docColumns).AddRow(int64(1), "a", int64(3), []byte(`{}`)))
	mock.ExpectRollback()

	err := s.UpdateIf(context.Background(), "issues", "a", 2, Fields{"status": "completed"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgres_Update(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seq, id, version, data FROM documents`).
		WithArgs("issues", "a").
		WillReturnRows(sqlmock.NewRows(docColumns).AddRow(int64(1), "a", int64(1), []byte(`{"title":"t"}`)))
	mock.ExpectExec(`UPDATE documents SET data = \$1, version = version \+ 1, updated_at = \$2 WHERE collection = \$3 AND id = \$4 AND version = \$5`).
		WithArgs(`{"status":"completed","title":"t"}`, sqlmock.AnyArg(), "issues", "a", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Update(context.Background(), "issues", "a", Fields{"status": "completed"}))
}

func TestPostgres_DeleteNotFound(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec(`DELETE FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("events", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Delete(context.Background(), "events", "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}
