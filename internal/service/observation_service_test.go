package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type mockObservationRepo struct {
	observations map[string]*models.Observation
	versions     []models.ObservationVersion
	searched     query.Node
}

func (m *mockObservationRepo) FindByID(_ context.Context, id string) (*models.Observation, error) {
	if obs, ok := m.observations[id]; ok {
		copied := *obs
		return &copied, nil
	}
	return nil, errNoRows()
}

func (m *mockObservationRepo) Create(_ context.Context, obs *models.Observation) error {
	obs.ID = "obs-new"
	if obs.Version == 0 {
		obs.Version = 1
	}
	if m.observations == nil {
		m.observations = map[string]*models.Observation{}
	}
	stored := *obs
	m.observations[obs.ID] = &stored
	return nil
}

func (m *mockObservationRepo) Update(_ context.Context, obs *models.Observation) error {
	stored := *obs
	m.observations[obs.ID] = &stored
	m.versions = append(m.versions, models.ObservationVersion{
		ObservationID: obs.ID, Version: obs.Version, Properties: obs.Properties, Status: obs.Status,
	})
	return nil
}

func (m *mockObservationRepo) SoftDelete(_ context.Context, id, _ string) error {
	m.observations[id].Status = models.ObservationDeleted
	return nil
}

func (m *mockObservationRepo) Search(_ context.Context, node query.Node, _, _ int) ([]models.Observation, int, error) {
	m.searched = node
	return nil, 0, nil
}

func (m *mockObservationRepo) ListVersions(_ context.Context, id string, below int) ([]models.ObservationVersion, error) {
	var out []models.ObservationVersion
	for _, v := range m.versions {
		if v.ObservationID == id && v.Version < below {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockCategoryGetter struct {
	category *models.Category
}

func (m *mockCategoryGetter) Get(_ context.Context, id string) (*models.Category, error) {
	if m.category != nil && m.category.ID == id {
		return m.category, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
}

type passVisibility struct{}

func (passVisibility) Resolve(_ context.Context, pc *models.ProjectContext, userID string, _ SearchOptions) (query.Node, error) {
	return query.And{query.ProjectIs{ID: pc.Project.ID}}, nil
}

func (passVisibility) CanSee(_ *models.ProjectContext, _ string, _ *models.Observation) bool {
	return true
}

func contributorContext() *models.ProjectContext {
	return &models.ProjectContext{
		Project: models.Project{ID: "project-1", Status: models.StatusActive},
		Role:    models.RoleContributor,
	}
}

func newObservationFixture() (*ObservationService, *mockObservationRepo) {
	repo := &mockObservationRepo{observations: map[string]*models.Observation{}}
	categories := &mockCategoryGetter{category: wildlifeCategory()}
	svc := NewObservationService(repo, categories, passVisibility{}, nil, zap.NewNop())
	return svc, repo
}

func TestCreateRejectsMissingRequiredField(t *testing.T) {
	svc, _ := newObservationFixture()

	_, err := svc.Create(context.Background(), contributorContext(), "user-1", CreateObservationRequest{
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		Properties: models.PropertyBag{"count": 3.0},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRequiredMissing.Code, appErr.Code)
}

func TestCreateTreatsEmptyStringAsMissing(t *testing.T) {
	svc, _ := newObservationFixture()

	_, err := svc.Create(context.Background(), contributorContext(), "user-1", CreateObservationRequest{
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		Properties: models.PropertyBag{"name": ""},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRequiredMissing.Code, appErr.Code)
}

func TestCreateUsesCategoryDefaultStatus(t *testing.T) {
	svc, _ := newObservationFixture()

	obs, err := svc.Create(context.Background(), contributorContext(), "user-1", CreateObservationRequest{
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		Properties: models.PropertyBag{"name": "Gecko"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ObservationPending, obs.Status)
	assert.Equal(t, 1, obs.Version)
	require.NotNil(t, obs.DisplayFieldString)
	assert.Equal(t, "name:Gecko", *obs.DisplayFieldString)
}

func TestCreateDraftSkipsValidation(t *testing.T) {
	svc, _ := newObservationFixture()

	obs, err := svc.Create(context.Background(), contributorContext(), "user-1", CreateObservationRequest{
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		IsDraft:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ObservationDraft, obs.Status)
}

func TestCreateRejectsLockedProject(t *testing.T) {
	svc, _ := newObservationFixture()
	pc := contributorContext()
	pc.Project.IsLocked = true

	_, err := svc.Create(context.Background(), pc, "user-1", CreateObservationRequest{
		CategoryID: "cat-1",
		Location:   "POINT(0 0)",
		Properties: models.PropertyBag{"name": "Gecko"},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrProjectLocked.Code, appErr.Code)
}

func TestUpdateMergesPropertiesAndBumpsVersion(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{"name": "Gecko", "count": 3.0},
		CreatorID:  "user-1", Status: models.ObservationPending, Version: 1,
	}

	obs, err := svc.Update(context.Background(), contributorContext(), "user-1", "obs-1", UpdateObservationRequest{
		Properties: models.PropertyBag{"count": 5.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, obs.Version)
	assert.Equal(t, "Gecko", obs.Properties["name"])
	assert.Equal(t, 5.0, obs.Properties["count"])
}

func TestUpdateToleratesKeysOfRemovedFields(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{"name": "Gecko", "legacy": "old value"},
		CreatorID:  "user-1", Status: models.ObservationPending, Version: 1,
	}

	obs, err := svc.Update(context.Background(), contributorContext(), "user-1", "obs-1", UpdateObservationRequest{
		Properties: models.PropertyBag{"name": "Wall Gecko"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, obs.Version)
	assert.Equal(t, "Wall Gecko", obs.Properties["name"])
	assert.Equal(t, "old value", obs.Properties["legacy"])
}

func TestUpdateDraftDoesNotBumpVersion(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{},
		CreatorID:  "user-1", Status: models.ObservationDraft, Version: 1,
	}

	obs, err := svc.Update(context.Background(), contributorContext(), "user-1", "obs-1", UpdateObservationRequest{
		Properties: models.PropertyBag{"count": 5.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, obs.Version)
	assert.Equal(t, models.ObservationDraft, obs.Status)
}

func TestUpdateByCreatorResubmitsFlaggedObservation(t *testing.T) {
	svc, repo := newObservationFixture()
	comment := "please check the species"
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{"name": "Gecko"},
		CreatorID:  "user-1", Status: models.ObservationReview, Version: 2,
		ReviewComment: &comment,
	}

	obs, err := svc.Update(context.Background(), contributorContext(), "user-1", "obs-1", UpdateObservationRequest{
		Properties: models.PropertyBag{"name": "Newt"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ObservationPending, obs.Status)
	assert.Equal(t, 3, obs.Version)
	assert.Nil(t, obs.ReviewComment)
}

func TestSubmitValidatesAndPromotesDraft(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{},
		CreatorID:  "user-1", Status: models.ObservationDraft, Version: 1,
	}

	_, err := svc.Submit(context.Background(), contributorContext(), "user-1", "obs-1")
	require.Error(t, err)

	repo.observations["obs-1"].Properties = models.PropertyBag{"name": "Gecko"}
	obs, err := svc.Submit(context.Background(), contributorContext(), "user-1", "obs-1")
	require.NoError(t, err)
	assert.Equal(t, models.ObservationPending, obs.Status)
}

func TestModerateEnforcesTransitions(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{"name": "Gecko"},
		CreatorID:  "user-1", Status: models.ObservationPending, Version: 1,
	}
	moderator := &models.ProjectContext{
		Project: models.Project{ID: "project-1"},
		Role:    models.RoleModerator,
	}

	_, err := svc.Moderate(context.Background(), contributorContext(), "user-1", "obs-1", models.ObservationActive, "")
	require.Error(t, err)

	_, err = svc.Moderate(context.Background(), moderator, "mod-1", "obs-1", models.ObservationDraft, "")
	require.Error(t, err)

	obs, err := svc.Moderate(context.Background(), moderator, "mod-1", "obs-1", models.ObservationActive, "")
	require.NoError(t, err)
	assert.Equal(t, models.ObservationActive, obs.Status)

	obs, err = svc.Moderate(context.Background(), moderator, "mod-1", "obs-1", models.ObservationReview, "species looks wrong")
	require.NoError(t, err)
	require.NotNil(t, obs.ReviewComment)
	assert.Equal(t, "species looks wrong", *obs.ReviewComment)
}

func TestVersionsReturnsHistoryBelowCurrent(t *testing.T) {
	svc, repo := newObservationFixture()
	repo.observations["obs-1"] = &models.Observation{
		ID: "obs-1", ProjectID: "project-1", CategoryID: "cat-1",
		Properties: models.PropertyBag{"name": "Newt"},
		CreatorID:  "user-1", Status: models.ObservationActive, Version: 3,
	}
	repo.versions = []models.ObservationVersion{
		{ObservationID: "obs-1", Version: 1},
		{ObservationID: "obs-1", Version: 2},
		{ObservationID: "obs-1", Version: 3},
	}

	versions, err := svc.Versions(context.Background(), contributorContext(), "user-1", "obs-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
}
