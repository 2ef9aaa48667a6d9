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

type stubVisibilityCategories struct {
	compiler   *CategoryService
	categories []models.Category
}

func (s *stubVisibilityCategories) ListByProject(_ context.Context, _ string) ([]models.Category, error) {
	return s.categories, nil
}

func (s *stubVisibilityCategories) CompileQuery(category *models.Category, rule models.Rule) (query.Node, error) {
	return s.compiler.CompileQuery(category, rule)
}

type stubSubsetRepo struct {
	subsets map[string]*models.Subset
}

func (s *stubSubsetRepo) FindByID(_ context.Context, id string) (*models.Subset, error) {
	if subset, ok := s.subsets[id]; ok {
		return subset, nil
	}
	return nil, errNoRows()
}

func newVisibilityFixture(subsets map[string]*models.Subset) *VisibilityService {
	categories := &stubVisibilityCategories{
		compiler:   newCategoryService(&mockCategoryRepo{}),
		categories: []models.Category{*wildlifeCategory()},
	}
	return NewVisibilityService(categories, &stubSubsetRepo{subsets: subsets}, zap.NewNop())
}

func projectContext(role models.ProjectRole, groups ...models.UserGroup) *models.ProjectContext {
	return &models.ProjectContext{
		Project: models.Project{ID: "project-1"},
		Role:    role,
		Groups:  groups,
	}
}

func TestResolveRejectsUsersWithoutRole(t *testing.T) {
	svc := newVisibilityFixture(nil)

	_, err := svc.Resolve(context.Background(), projectContext(models.RoleNone), "user-1", SearchOptions{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestResolveViewerSeesActiveOnly(t *testing.T) {
	svc := newVisibilityFixture(nil)

	node, err := svc.Resolve(context.Background(), projectContext(models.RoleViewer), "", SearchOptions{})
	require.NoError(t, err)

	sql, args := query.Lower(node, 0)
	assert.Equal(t, "((project_id = $1) AND (status = ANY($2)))", sql)
	assert.Equal(t, "project-1", args[0])
}

func TestResolveContributorSeesOwnPendingWork(t *testing.T) {
	svc := newVisibilityFixture(nil)

	node, err := svc.Resolve(context.Background(), projectContext(models.RoleContributor), "user-1", SearchOptions{})
	require.NoError(t, err)

	sql, args := query.Lower(node, 0)
	assert.Contains(t, sql, " OR ")
	assert.Contains(t, sql, "creator_id = $")
	assert.Contains(t, args, "user-1")
}

func TestResolveGroupWithoutFiltersGrantsFullProject(t *testing.T) {
	svc := newVisibilityFixture(nil)
	scoped := models.UserGroup{ID: "group-1", Filters: models.FilterMap{"cat-1": {"name": "Gecko"}}}
	open := models.UserGroup{ID: "group-2"}

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleContributor, scoped, open), "user-1", SearchOptions{})
	require.NoError(t, err)

	sql, _ := query.Lower(node, 0)
	assert.NotContains(t, sql, "ILIKE '%Gecko%'")
	assert.NotContains(t, sql, "properties")
}

func TestResolveUnionsGroupFilters(t *testing.T) {
	svc := newVisibilityFixture(nil)
	geckos := models.UserGroup{ID: "group-1", Filters: models.FilterMap{"cat-1": {"name": "Gecko"}}}
	newts := models.UserGroup{ID: "group-2", Filters: models.FilterMap{"cat-1": {"name": "Newt"}}}

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleContributor, geckos, newts), "user-1", SearchOptions{})
	require.NoError(t, err)

	_, args := query.Lower(node, 0)
	assert.Contains(t, args, "%Gecko%")
	assert.Contains(t, args, "%Newt%")
}

func TestResolveEmptyFilterMapMatchesNothing(t *testing.T) {
	svc := newVisibilityFixture(nil)
	locked := models.UserGroup{ID: "group-1", Filters: models.FilterMap{}}

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleContributor, locked), "user-1", SearchOptions{})
	require.NoError(t, err)

	sql, _ := query.Lower(node, 0)
	assert.Contains(t, sql, "FALSE")
}

func TestResolveAdminIgnoresGroupFilters(t *testing.T) {
	svc := newVisibilityFixture(nil)
	scoped := models.UserGroup{ID: "group-1", Filters: models.FilterMap{"cat-1": {"name": "Gecko"}}}

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleAdmin, scoped), "user-1", SearchOptions{})
	require.NoError(t, err)

	_, args := query.Lower(node, 0)
	assert.NotContains(t, args, "%Gecko%")
}

func TestResolveAppliesSubsetFilters(t *testing.T) {
	svc := newVisibilityFixture(map[string]*models.Subset{
		"subset-1": {ID: "subset-1", ProjectID: "project-1",
			Filters: models.FilterMap{"cat-1": {"name": "Gecko"}}},
		"subset-other": {ID: "subset-other", ProjectID: "project-2"},
	})

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleViewer), "", SearchOptions{SubsetID: "subset-1"})
	require.NoError(t, err)
	_, args := query.Lower(node, 0)
	assert.Contains(t, args, "%Gecko%")

	_, err = svc.Resolve(context.Background(),
		projectContext(models.RoleViewer), "", SearchOptions{SubsetID: "subset-other"})
	require.Error(t, err)

	_, err = svc.Resolve(context.Background(),
		projectContext(models.RoleViewer), "", SearchOptions{SubsetID: "subset-ghost"})
	require.Error(t, err)
}

func TestResolveTokenizesSearch(t *testing.T) {
	svc := newVisibilityFixture(nil)

	node, err := svc.Resolve(context.Background(),
		projectContext(models.RoleViewer), "", SearchOptions{Search: "gecko, wall"})
	require.NoError(t, err)

	_, args := query.Lower(node, 0)
	assert.Contains(t, args, "%gecko%")
	assert.Contains(t, args, "%wall%")
}

func TestCanSeeScopesByRoleAndStatus(t *testing.T) {
	svc := newVisibilityFixture(nil)

	draft := &models.Observation{Status: models.ObservationDraft, CreatorID: "user-1"}
	pending := &models.Observation{Status: models.ObservationPending, CreatorID: "user-1"}
	active := &models.Observation{Status: models.ObservationActive, CreatorID: "user-1"}
	deleted := &models.Observation{Status: models.ObservationDeleted, CreatorID: "user-1"}

	assert.True(t, svc.CanSee(projectContext(models.RoleContributor), "user-1", draft))
	assert.False(t, svc.CanSee(projectContext(models.RoleAdmin), "admin-1", draft))
	assert.False(t, svc.CanSee(projectContext(models.RoleViewer), "user-2", pending))
	assert.True(t, svc.CanSee(projectContext(models.RoleContributor), "user-1", pending))
	assert.True(t, svc.CanSee(projectContext(models.RoleModerator), "mod-1", pending))
	assert.True(t, svc.CanSee(projectContext(models.RoleViewer), "", active))
	assert.False(t, svc.CanSee(projectContext(models.RoleAdmin), "admin-1", deleted))
}
