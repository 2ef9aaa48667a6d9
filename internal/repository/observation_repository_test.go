package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func observationRows(id string, version int, status models.ObservationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "category_id", "location", "properties", "creator_id", "updator_id",
		"status", "version", "review_comment", "display_field_string", "expiry_field",
		"search_index", "num_media", "num_comments", "created_at", "updated_at",
	}).AddRow(id, "project-1", "cat-1", "POINT(0 0)", []byte(`{"name":"Gecko"}`), "user-1", nil,
		status, version, nil, "name:Gecko", nil, "Gecko", 0, 0, time.Now(), time.Now())
}

func TestObservationRepositoryCreateRecordsFirstVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewObservationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO observations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO observation_versions")).
		WithArgs(sqlmock.AnyArg(), 1, sqlmock.AnyArg(), models.ObservationPending, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	obs := &models.Observation{
		ProjectID:  "project-1",
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		Properties: models.PropertyBag{"name": "Gecko"},
		CreatorID:  "user-1",
		Status:     models.ObservationPending,
	}
	require.NoError(t, repo.Create(context.Background(), obs))
	require.Equal(t, 1, obs.Version)
	require.NotEmpty(t, obs.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationRepositoryUpdateAppendsVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewObservationRepository(db)

	updator := "user-2"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE observations SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO observation_versions")).
		WithArgs("obs-1", 2, sqlmock.AnyArg(), models.ObservationPending, &updator, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	obs := &models.Observation{
		ID:         "obs-1",
		Properties: models.PropertyBag{"name": "Newt"},
		UpdatorID:  &updator,
		Status:     models.ObservationPending,
		Version:    2,
	}
	require.NoError(t, repo.Update(context.Background(), obs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationRepositorySearchLowersPredicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewObservationRepository(db)

	node := query.And{
		query.ProjectIs{ID: "project-1"},
		query.StatusIn{string(models.ObservationActive)},
	}

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
		WillReturnRows(observationRows("obs-1", 1, models.ObservationActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM observations WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	observations, total, err := repo.Search(context.Background(), node, 1, 20)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationRepositoryListVersions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewObservationRepository(db)

	rows := sqlmock.NewRows([]string{"observation_id", "version", "properties", "status", "updator_id", "updated_at"}).
		AddRow("obs-1", 1, []byte(`{"name":"Gecko"}`), "pending", nil, time.Now()).
		AddRow("obs-1", 2, []byte(`{"name":"Newt"}`), "active", nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM observation_versions WHERE observation_id = $1 AND version < $2")).
		WithArgs("obs-1", 3).
		WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background(), "obs-1", 3)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, 1, versions[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationRepositoryRecountRelated(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewObservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE observations SET")).
		WithArgs("obs-1", models.StatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecountRelated(context.Background(), "obs-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
