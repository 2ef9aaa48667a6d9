package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
	appErrors "github.com/geokey/geokey-api/pkg/errors"
)

type observationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Observation, error)
	Create(ctx context.Context, obs *models.Observation) error
	Update(ctx context.Context, obs *models.Observation) error
	SoftDelete(ctx context.Context, id, updatorID string) error
	Search(ctx context.Context, node query.Node, page, pageSize int) ([]models.Observation, int, error)
	ListVersions(ctx context.Context, observationID string, below int) ([]models.ObservationVersion, error)
}

type observationCategoryService interface {
	Get(ctx context.Context, categoryID string) (*models.Category, error)
}

type observationVisibilityService interface {
	Resolve(ctx context.Context, pc *models.ProjectContext, userID string, opts SearchOptions) (query.Node, error)
	CanSee(pc *models.ProjectContext, userID string, obs *models.Observation) bool
}

// ObservationService manages the observation lifecycle: creation, merge
// updates, versioning, moderation transitions and scoped reads.
type ObservationService struct {
	repo       observationRepository
	categories observationCategoryService
	visibility observationVisibilityService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewObservationService constructs an ObservationService.
func NewObservationService(repo observationRepository, categories observationCategoryService, visibility observationVisibilityService, validate *validator.Validate, logger *zap.Logger) *ObservationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ObservationService{repo: repo, categories: categories, visibility: visibility, validator: validate, logger: logger}
}

// CreateObservationRequest is the submission payload.
type CreateObservationRequest struct {
	CategoryID string             `json:"category_id" validate:"required"`
	Location   models.Geometry    `json:"location" validate:"required"`
	Properties models.PropertyBag `json:"properties"`
	IsDraft    bool               `json:"is_draft"`
}

// UpdateObservationRequest carries a partial property update. Properties
// merge over the stored bag; keys set to null clear the value.
type UpdateObservationRequest struct {
	Location   *models.Geometry   `json:"location"`
	Properties models.PropertyBag `json:"properties"`
}

// Create validates and stores a new observation. Drafts skip schema
// validation of required fields only when explicitly submitted as drafts;
// everything else is validated against the category schema and enters the
// category's default status.
func (s *ObservationService) Create(ctx context.Context, pc *models.ProjectContext, userID string, req CreateObservationRequest) (*models.Observation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid observation payload")
	}
	if !pc.Role.CanContribute() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not contribute to this project")
	}
	if pc.Project.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrProjectLocked, "")
	}

	category, err := s.categories.Get(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if category.ProjectID != pc.Project.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found in this project")
	}
	if category.Status != models.StatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category is not active")
	}

	properties := req.Properties
	if properties == nil {
		properties = models.PropertyBag{}
	}
	properties.Normalize()

	if !req.IsDraft {
		if err := ValidateProperties(category, properties); err != nil {
			return nil, err
		}
	}

	obs := &models.Observation{
		ProjectID:  pc.Project.ID,
		CategoryID: req.CategoryID,
		Location:   req.Location,
		Properties: properties,
		CreatorID:  userID,
		Status:     category.DefaultStatus,
	}
	if req.IsDraft {
		obs.Status = models.ObservationDraft
	}
	ComputeDerived(category, obs)

	if err := s.repo.Create(ctx, obs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create observation")
	}
	s.logger.Info("observation created",
		zap.String("observation_id", obs.ID),
		zap.String("category_id", obs.CategoryID),
		zap.String("status", string(obs.Status)))
	return obs, nil
}

// Get returns a single observation, enforcing the viewer's scope.
func (s *ObservationService) Get(ctx context.Context, pc *models.ProjectContext, userID, id string) (*models.Observation, error) {
	obs, err := s.load(ctx, pc, id)
	if err != nil {
		return nil, err
	}
	if !s.visibility.CanSee(pc, userID, obs) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
	}
	return obs, nil
}

// Update merges new property values over the stored bag, revalidates the
// result against the schema and persists it. Updating anything but a draft
// advances the version counter; drafts are overwritten in place. A creator
// updating a flagged observation resubmits it for moderation.
func (s *ObservationService) Update(ctx context.Context, pc *models.ProjectContext, userID, id string, req UpdateObservationRequest) (*models.Observation, error) {
	obs, err := s.load(ctx, pc, id)
	if err != nil {
		return nil, err
	}
	if !s.canEdit(pc, userID, obs) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not edit this observation")
	}
	if pc.Project.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrProjectLocked, "")
	}

	category, err := s.categories.Get(ctx, obs.CategoryID)
	if err != nil {
		return nil, err
	}

	updates := req.Properties
	if updates == nil {
		updates = models.PropertyBag{}
	}
	updates.Normalize()
	merged := obs.Properties.Merge(updates)

	if obs.Status != models.ObservationDraft {
		if err := ValidateProperties(category, merged); err != nil {
			return nil, err
		}
	}

	if req.Location != nil {
		obs.Location = *req.Location
	}
	obs.Properties = merged
	obs.UpdatorID = &userID
	if obs.Status != models.ObservationDraft {
		obs.Version++
	}
	if obs.Status == models.ObservationReview && obs.CreatorID == userID {
		obs.Status = models.ObservationPending
		obs.ReviewComment = nil
	}
	ComputeDerived(category, obs)

	if err := s.repo.Update(ctx, obs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update observation")
	}
	return obs, nil
}

// Submit moves a draft into the category's default status after full schema
// validation.
func (s *ObservationService) Submit(ctx context.Context, pc *models.ProjectContext, userID, id string) (*models.Observation, error) {
	obs, err := s.load(ctx, pc, id)
	if err != nil {
		return nil, err
	}
	if obs.CreatorID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator may submit a draft")
	}
	if obs.Status != models.ObservationDraft {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only drafts can be submitted")
	}
	if pc.Project.IsLocked {
		return nil, appErrors.Clone(appErrors.ErrProjectLocked, "")
	}

	category, err := s.categories.Get(ctx, obs.CategoryID)
	if err != nil {
		return nil, err
	}
	if err := ValidateProperties(category, obs.Properties); err != nil {
		return nil, err
	}

	obs.Status = category.DefaultStatus
	obs.UpdatorID = &userID
	ComputeDerived(category, obs)
	if err := s.repo.Update(ctx, obs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit observation")
	}
	return obs, nil
}

// Moderate applies a moderation transition. Moderators approve pending or
// flagged observations to active, or flag active ones for review with a
// comment.
func (s *ObservationService) Moderate(ctx context.Context, pc *models.ProjectContext, userID, id string, target models.ObservationStatus, comment string) (*models.Observation, error) {
	if !pc.Role.CanModerate() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators may change observation status")
	}
	obs, err := s.load(ctx, pc, id)
	if err != nil {
		return nil, err
	}

	if !validTransition(obs.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot move observation from %s to %s", obs.Status, target))
	}

	obs.Status = target
	obs.UpdatorID = &userID
	obs.Version++
	if target == models.ObservationReview {
		obs.ReviewComment = &comment
	} else {
		obs.ReviewComment = nil
	}
	if err := s.repo.Update(ctx, obs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to moderate observation")
	}
	s.logger.Info("observation moderated",
		zap.String("observation_id", obs.ID),
		zap.String("status", string(target)),
		zap.String("moderator_id", userID))
	return obs, nil
}

func validTransition(from, to models.ObservationStatus) bool {
	switch from {
	case models.ObservationPending:
		return to == models.ObservationActive || to == models.ObservationReview
	case models.ObservationReview:
		return to == models.ObservationActive
	case models.ObservationActive:
		return to == models.ObservationReview
	default:
		return false
	}
}

// Delete soft-deletes an observation. Creators and moderators only.
func (s *ObservationService) Delete(ctx context.Context, pc *models.ProjectContext, userID, id string) error {
	obs, err := s.load(ctx, pc, id)
	if err != nil {
		return err
	}
	if !s.canEdit(pc, userID, obs) {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not delete this observation")
	}
	if err := s.repo.SoftDelete(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete observation")
	}
	return nil
}

// Versions returns the historical states preceding the current version.
func (s *ObservationService) Versions(ctx context.Context, pc *models.ProjectContext, userID, id string) ([]models.ObservationVersion, error) {
	obs, err := s.Get(ctx, pc, userID, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, id, obs.Version)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list observation versions")
	}
	return versions, nil
}

// Search returns the observations inside the user's resolved scope.
func (s *ObservationService) Search(ctx context.Context, pc *models.ProjectContext, userID string, opts SearchOptions, page, pageSize int) ([]models.Observation, int, error) {
	scope, err := s.visibility.Resolve(ctx, pc, userID, opts)
	if err != nil {
		return nil, 0, err
	}
	observations, total, err := s.repo.Search(ctx, scope, page, pageSize)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search observations")
	}
	return observations, total, nil
}

func (s *ObservationService) load(ctx context.Context, pc *models.ProjectContext, id string) (*models.Observation, error) {
	obs, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load observation")
	}
	if obs.ProjectID != pc.Project.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "observation not found")
	}
	return obs, nil
}

func (s *ObservationService) canEdit(pc *models.ProjectContext, userID string, obs *models.Observation) bool {
	if pc.Role.CanModerate() {
		return true
	}
	return userID != "" && obs.CreatorID == userID
}
