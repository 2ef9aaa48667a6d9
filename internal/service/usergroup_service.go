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

type userGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.UserGroup, error)
	ListByProject(ctx context.Context, projectID string) ([]models.UserGroup, error)
	Create(ctx context.Context, group *models.UserGroup) error
	Update(ctx context.Context, group *models.UserGroup) error
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

type filterValidator interface {
	ValidateFilters(ctx context.Context, projectID string, filters models.FilterMap) error
}

// UserGroupService manages project user groups, their membership and filter
// maps.
type UserGroupService struct {
	repo      userGroupRepository
	filters   filterValidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserGroupService constructs a UserGroupService.
func NewUserGroupService(repo userGroupRepository, filters filterValidator, validate *validator.Validate, logger *zap.Logger) *UserGroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserGroupService{repo: repo, filters: filters, validator: validate, logger: logger}
}

// UserGroupRequest is the create/update payload. A nil Filters leaves the
// group unscoped; an empty map hides everything from its members.
type UserGroupRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description"`
	CanModerate   bool             `json:"can_moderate"`
	CanContribute bool             `json:"can_contribute"`
	Filters       models.FilterMap `json:"filters"`
}

// List returns the groups of a project.
func (s *UserGroupService) List(ctx context.Context, projectID string) ([]models.UserGroup, error) {
	groups, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list user groups")
	}
	return groups, nil
}

// Get returns a group with its members.
func (s *UserGroupService) Get(ctx context.Context, projectID, groupID string) (*models.UserGroup, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user group")
	}
	if group.ProjectID != projectID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user group not found")
	}
	return group, nil
}

// Create registers a new group after validating its filter map against the
// project's category schemas.
func (s *UserGroupService) Create(ctx context.Context, projectID string, req UserGroupRequest) (*models.UserGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user group payload")
	}
	if err := s.filters.ValidateFilters(ctx, projectID, req.Filters); err != nil {
		return nil, err
	}

	group := &models.UserGroup{
		ProjectID:     projectID,
		Name:          req.Name,
		Description:   req.Description,
		CanModerate:   req.CanModerate,
		CanContribute: req.CanContribute,
		Filters:       req.Filters,
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user group")
	}
	return group, nil
}

// Update modifies a group and its filter map.
func (s *UserGroupService) Update(ctx context.Context, projectID, groupID string, req UserGroupRequest) (*models.UserGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user group payload")
	}
	group, err := s.Get(ctx, projectID, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.filters.ValidateFilters(ctx, projectID, req.Filters); err != nil {
		return nil, err
	}

	group.Name = req.Name
	group.Description = req.Description
	group.CanModerate = req.CanModerate
	group.CanContribute = req.CanContribute
	group.Filters = req.Filters
	if err := s.repo.Update(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user group")
	}
	return group, nil
}

// Delete removes a group and its membership.
func (s *UserGroupService) Delete(ctx context.Context, projectID, groupID string) error {
	if _, err := s.Get(ctx, projectID, groupID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user group")
	}
	return nil
}

// AddMember puts a user in the group.
func (s *UserGroupService) AddMember(ctx context.Context, projectID, groupID, userID string) error {
	if _, err := s.Get(ctx, projectID, groupID); err != nil {
		return err
	}
	if err := s.repo.AddMember(ctx, groupID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add group member")
	}
	return nil
}

// RemoveMember takes a user out of the group.
func (s *UserGroupService) RemoveMember(ctx context.Context, projectID, groupID, userID string) error {
	if _, err := s.Get(ctx, projectID, groupID); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove group member")
	}
	return nil
}
