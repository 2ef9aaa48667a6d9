package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type projectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
	ListVisible(ctx context.Context, userID string) ([]models.Project, error)
	Create(ctx context.Context, project *models.Project) error
	Update(ctx context.Context, project *models.Project) error
	SoftDelete(ctx context.Context, id string) error
	IsAdmin(ctx context.Context, projectID, userID string) (bool, error)
	AddAdmin(ctx context.Context, projectID, userID string) error
	RemoveAdmin(ctx context.Context, projectID, userID string) error
	ListAdmins(ctx context.Context, projectID string) ([]string, error)
}

type projectGroupRepository interface {
	ListForUser(ctx context.Context, projectID, userID string) ([]models.UserGroup, error)
}

// ProjectService provides project management and permission resolution.
type ProjectService struct {
	projects  projectRepository
	groups    projectGroupRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectService constructs a ProjectService.
func NewProjectService(projects projectRepository, groups projectGroupRepository, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProjectService{projects: projects, groups: groups, validator: validate, logger: logger}
}

// ProjectRequest is the create/update payload.
type ProjectRequest struct {
	Name                string `json:"name" validate:"required,max=200"`
	Description         string `json:"description"`
	IsPrivate           bool   `json:"is_private"`
	IsLocked            bool   `json:"is_locked"`
	EveryoneContributes bool   `json:"everyone_contributes"`
}

// List returns the projects visible to the user. An empty userID lists
// public projects only.
func (s *ProjectService) List(ctx context.Context, userID string) ([]models.Project, error) {
	projects, err := s.projects.ListVisible(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

// Create registers a new project owned by the user.
func (s *ProjectService) Create(ctx context.Context, userID string, req ProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	project := &models.Project{
		Name:                req.Name,
		Description:         req.Description,
		IsPrivate:           req.IsPrivate,
		IsLocked:            req.IsLocked,
		EveryoneContributes: req.EveryoneContributes,
		CreatorID:           userID,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}
	s.logger.Info("project created", zap.String("project_id", project.ID), zap.String("creator_id", userID))
	return project, nil
}

// Update modifies a project. Admins only.
func (s *ProjectService) Update(ctx context.Context, projectID, userID string, req ProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}
	pc, err := s.ResolveContext(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if pc.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only project admins may update the project")
	}

	project := pc.Project
	project.Name = req.Name
	project.Description = req.Description
	project.IsPrivate = req.IsPrivate
	project.IsLocked = req.IsLocked
	project.EveryoneContributes = req.EveryoneContributes
	if err := s.projects.Update(ctx, &project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	return &project, nil
}

// Delete soft-deletes a project. Admins only.
func (s *ProjectService) Delete(ctx context.Context, projectID, userID string) error {
	pc, err := s.ResolveContext(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if pc.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only project admins may delete the project")
	}
	if err := s.projects.SoftDelete(ctx, projectID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	return nil
}

// AddAdmin grants admin rights. Admins only.
func (s *ProjectService) AddAdmin(ctx context.Context, projectID, userID, targetID string) error {
	pc, err := s.ResolveContext(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if pc.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only project admins may manage admins")
	}
	if err := s.projects.AddAdmin(ctx, projectID, targetID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add admin")
	}
	return nil
}

// RemoveAdmin revokes admin rights. Admins only; the creator keeps theirs.
func (s *ProjectService) RemoveAdmin(ctx context.Context, projectID, userID, targetID string) error {
	pc, err := s.ResolveContext(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if pc.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only project admins may manage admins")
	}
	if targetID == pc.Project.CreatorID {
		return appErrors.Clone(appErrors.ErrForbidden, "the project creator cannot be removed")
	}
	if err := s.projects.RemoveAdmin(ctx, projectID, targetID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove admin")
	}
	return nil
}

// ListAdmins returns the user ids holding admin rights. Admins only.
func (s *ProjectService) ListAdmins(ctx context.Context, projectID, userID string) ([]string, error) {
	pc, err := s.ResolveContext(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if pc.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only project admins may list admins")
	}
	admins, err := s.projects.ListAdmins(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admins")
	}
	return admins, nil
}

// ResolveContext loads a project and derives the user's effective role and
// group membership. An empty userID resolves the anonymous viewer.
//
// Role precedence: registered admins first, then group flags (moderate over
// contribute), then everyone_contributes, then plain viewer. Private projects
// resolve to RoleNone for outsiders.
func (s *ProjectService) ResolveContext(ctx context.Context, projectID, userID string) (*models.ProjectContext, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}

	pc := &models.ProjectContext{Project: *project, Role: models.RoleNone}

	if userID == "" {
		if !project.IsPrivate {
			pc.Role = models.RoleViewer
		}
		return pc, nil
	}

	admin, err := s.projects.IsAdmin(ctx, projectID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admin membership")
	}
	if admin || project.CreatorID == userID {
		pc.Role = models.RoleAdmin
	}

	groups, err := s.groups.ListForUser(ctx, projectID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group membership")
	}
	pc.Groups = groups

	if pc.Role == models.RoleAdmin {
		return pc, nil
	}

	for _, g := range groups {
		if g.CanModerate {
			pc.Role = models.RoleModerator
		} else if g.CanContribute && pc.Role != models.RoleModerator {
			pc.Role = models.RoleContributor
		} else if pc.Role == models.RoleNone {
			pc.Role = models.RoleViewer
		}
	}

	if pc.Role == models.RoleNone && !project.IsPrivate {
		pc.Role = models.RoleViewer
	}
	if pc.Role == models.RoleViewer && project.EveryoneContributes {
		pc.Role = models.RoleContributor
	}

	return pc, nil
}
