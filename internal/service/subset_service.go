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

type subsetRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subset, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Subset, error)
	Create(ctx context.Context, subset *models.Subset) error
	Update(ctx context.Context, subset *models.Subset) error
	Delete(ctx context.Context, id string) error
}

// SubsetService manages named read filters on a project.
type SubsetService struct {
	repo      subsetRepository
	filters   filterValidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubsetService constructs a SubsetService.
func NewSubsetService(repo subsetRepository, filters filterValidator, validate *validator.Validate, logger *zap.Logger) *SubsetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubsetService{repo: repo, filters: filters, validator: validate, logger: logger}
}

// SubsetRequest is the create/update payload.
type SubsetRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description"`
	Filters     models.FilterMap `json:"filters"`
}

// List returns the subsets of a project.
func (s *SubsetService) List(ctx context.Context, projectID string) ([]models.Subset, error) {
	subsets, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subsets")
	}
	return subsets, nil
}

// Get returns a subset belonging to the project.
func (s *SubsetService) Get(ctx context.Context, projectID, subsetID string) (*models.Subset, error) {
	subset, err := s.repo.FindByID(ctx, subsetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subset not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subset")
	}
	if subset.ProjectID != projectID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subset not found")
	}
	return subset, nil
}

// Create registers a new subset after validating its filter map.
func (s *SubsetService) Create(ctx context.Context, projectID, userID string, req SubsetRequest) (*models.Subset, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subset payload")
	}
	if err := s.filters.ValidateFilters(ctx, projectID, req.Filters); err != nil {
		return nil, err
	}

	subset := &models.Subset{
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   userID,
		Filters:     req.Filters,
	}
	if err := s.repo.Create(ctx, subset); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subset")
	}
	return subset, nil
}

// Update modifies a subset and its filter map.
func (s *SubsetService) Update(ctx context.Context, projectID, subsetID string, req SubsetRequest) (*models.Subset, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subset payload")
	}
	subset, err := s.Get(ctx, projectID, subsetID)
	if err != nil {
		return nil, err
	}
	if err := s.filters.ValidateFilters(ctx, projectID, req.Filters); err != nil {
		return nil, err
	}

	subset.Name = req.Name
	subset.Description = req.Description
	subset.Filters = req.Filters
	if err := s.repo.Update(ctx, subset); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subset")
	}
	return subset, nil
}

// Delete removes a subset.
func (s *SubsetService) Delete(ctx context.Context, projectID, subsetID string) error {
	if _, err := s.Get(ctx, projectID, subsetID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, subsetID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subset")
	}
	return nil
}
