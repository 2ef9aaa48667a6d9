package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type mockProjectRepo struct {
	projects map[string]*models.Project
	admins   map[string][]string
	removed  []string
}

func (m *mockProjectRepo) FindByID(_ context.Context, id string) (*models.Project, error) {
	if p, ok := m.projects[id]; ok {
		return p, nil
	}
	return nil, errNoRows()
}

func (m *mockProjectRepo) ListVisible(_ context.Context, _ string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProjectRepo) Create(_ context.Context, project *models.Project) error {
	project.ID = "project-new"
	return nil
}

func (m *mockProjectRepo) Update(_ context.Context, _ *models.Project) error { return nil }

func (m *mockProjectRepo) SoftDelete(_ context.Context, _ string) error { return nil }

func (m *mockProjectRepo) IsAdmin(_ context.Context, projectID, userID string) (bool, error) {
	for _, id := range m.admins[projectID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProjectRepo) AddAdmin(_ context.Context, projectID, userID string) error {
	m.admins[projectID] = append(m.admins[projectID], userID)
	return nil
}

func (m *mockProjectRepo) RemoveAdmin(_ context.Context, _, userID string) error {
	m.removed = append(m.removed, userID)
	return nil
}

func (m *mockProjectRepo) ListAdmins(_ context.Context, projectID string) ([]string, error) {
	return m.admins[projectID], nil
}

type mockGroupMembership struct {
	groups map[string][]models.UserGroup
}

func (m *mockGroupMembership) ListForUser(_ context.Context, _, userID string) ([]models.UserGroup, error) {
	return m.groups[userID], nil
}

func newProjectFixture(project *models.Project, groups map[string][]models.UserGroup) (*ProjectService, *mockProjectRepo) {
	repo := &mockProjectRepo{
		projects: map[string]*models.Project{project.ID: project},
		admins:   map[string][]string{project.ID: {"admin-1"}},
	}
	if groups == nil {
		groups = map[string][]models.UserGroup{}
	}
	svc := NewProjectService(repo, &mockGroupMembership{groups: groups}, nil, zap.NewNop())
	return svc, repo
}

func publicProject() *models.Project {
	return &models.Project{ID: "project-1", Name: "City Wildlife", CreatorID: "creator-1"}
}

func TestResolveContextAnonymousViewer(t *testing.T) {
	svc, _ := newProjectFixture(publicProject(), nil)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, pc.Role)
}

func TestResolveContextAnonymousOnPrivateProject(t *testing.T) {
	project := publicProject()
	project.IsPrivate = true
	svc, _ := newProjectFixture(project, nil)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, pc.Role)
}

func TestResolveContextCreatorIsAdmin(t *testing.T) {
	svc, _ := newProjectFixture(publicProject(), nil)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "creator-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, pc.Role)
}

func TestResolveContextModerateBeatsContribute(t *testing.T) {
	groups := map[string][]models.UserGroup{
		"user-1": {
			{ID: "group-1", CanContribute: true},
			{ID: "group-2", CanModerate: true},
		},
	}
	svc, _ := newProjectFixture(publicProject(), groups)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, pc.Role)
	assert.Len(t, pc.Groups, 2)
}

func TestResolveContextPlainMemberIsViewer(t *testing.T) {
	groups := map[string][]models.UserGroup{
		"user-1": {{ID: "group-1"}},
	}
	project := publicProject()
	project.IsPrivate = true
	svc, _ := newProjectFixture(project, groups)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, pc.Role)
}

func TestResolveContextEveryoneContributesUpgradesViewers(t *testing.T) {
	project := publicProject()
	project.EveryoneContributes = true
	svc, _ := newProjectFixture(project, nil)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleContributor, pc.Role)
}

func TestResolveContextPrivateProjectExcludesOutsiders(t *testing.T) {
	project := publicProject()
	project.IsPrivate = true
	project.EveryoneContributes = true
	svc, _ := newProjectFixture(project, nil)

	pc, err := svc.ResolveContext(context.Background(), "project-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, pc.Role)
}

func TestRemoveAdminProtectsCreator(t *testing.T) {
	svc, repo := newProjectFixture(publicProject(), nil)

	err := svc.RemoveAdmin(context.Background(), "project-1", "creator-1", "creator-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	require.NoError(t, svc.RemoveAdmin(context.Background(), "project-1", "creator-1", "admin-1"))
	assert.Equal(t, []string{"admin-1"}, repo.removed)
}

func TestUpdateRequiresAdmin(t *testing.T) {
	svc, _ := newProjectFixture(publicProject(), nil)

	_, err := svc.Update(context.Background(), "project-1", "user-1", ProjectRequest{Name: "Renamed"})
	require.Error(t, err)

	project, err := svc.Update(context.Background(), "project-1", "creator-1", ProjectRequest{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", project.Name)
}
