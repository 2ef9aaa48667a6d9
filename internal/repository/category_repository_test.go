package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/geokey/geokey-api/internal/models"
)

func TestCategoryRepositoryReorderFields(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET ordering = $3")).
		WithArgs("field-b", "cat-1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET ordering = $3")).
		WithArgs("field-a", "cat-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReorderFields(context.Background(), "cat-1", []string{"field-b", "field-a"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepositoryReorderFieldsRollsBackOnUnknownField(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET ordering = $3")).
		WithArgs("field-x", "cat-1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ReorderFields(context.Background(), "cat-1", []string{"field-x"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepositorySoftDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE categories SET status = $2")).
		WithArgs("cat-1", "deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET status = $2")).
		WithArgs("cat-1", "deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE observations SET status = $2")).
		WithArgs("cat-1", "deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_groups SET filters = filters - $2")).
		WithArgs("project-1", "cat-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subsets SET filters = filters - $2")).
		WithArgs("project-1", "cat-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SoftDelete(context.Background(), "project-1", "cat-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepositorySoftDeleteFieldDetachesAndCleansFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET status = $3")).
		WithArgs("field-count", "cat-1", "deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE categories SET display_field_id = NULLIF(display_field_id, $2)")).
		WithArgs("cat-1", "field-count", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_groups SET filters = filters #- ARRAY[$2, $3]")).
		WithArgs("project-1", "cat-1", "count", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subsets SET filters = filters #- ARRAY[$2, $3]")).
		WithArgs("project-1", "cat-1", "count", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SoftDeleteField(context.Background(), "project-1", "cat-1", "field-count", "count")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepositoryCreateLookupValueReturnsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCategoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lookup_values")).
		WithArgs("field-1", "Gecko", "active", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	value := &models.LookupValue{FieldID: "field-1", Name: "Gecko"}
	err := repo.CreateLookupValue(context.Background(), value)
	require.NoError(t, err)
	require.Equal(t, int64(7), value.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
