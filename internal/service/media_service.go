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

type mediaRepository interface {
	FindByID(ctx context.Context, id string) (*models.MediaFile, error)
	ListByObservation(ctx context.Context, observationID string) ([]models.MediaFile, error)
	Create(ctx context.Context, media *models.MediaFile) error
	SoftDelete(ctx context.Context, id string) error
}

type mediaObservationService interface {
	Get(ctx context.Context, pc *models.ProjectContext, userID, id string) (*models.Observation, error)
}

// MediaService manages media metadata attached to observations. Blob storage
// is external; only references are kept here.
type MediaService struct {
	repo         mediaRepository
	observations mediaObservationService
	counter      relatedCounter
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewMediaService constructs a MediaService.
func NewMediaService(repo mediaRepository, observations mediaObservationService, counter relatedCounter, validate *validator.Validate, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MediaService{repo: repo, observations: observations, counter: counter, validator: validate, logger: logger}
}

// MediaRequest is the attachment payload.
type MediaRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	ContentType string `json:"content_type" validate:"required"`
	URL         string `json:"url" validate:"required,url"`
}

// List returns the media attached to an observation the user may see.
func (s *MediaService) List(ctx context.Context, pc *models.ProjectContext, userID, observationID string) ([]models.MediaFile, error) {
	if _, err := s.observations.Get(ctx, pc, userID, observationID); err != nil {
		return nil, err
	}
	files, err := s.repo.ListByObservation(ctx, observationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list media")
	}
	return files, nil
}

// Attach records a media reference on an observation.
func (s *MediaService) Attach(ctx context.Context, pc *models.ProjectContext, userID, observationID string, req MediaRequest) (*models.MediaFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid media payload")
	}
	if _, err := s.observations.Get(ctx, pc, userID, observationID); err != nil {
		return nil, err
	}

	media := &models.MediaFile{
		ObservationID: observationID,
		Name:          req.Name,
		Description:   req.Description,
		ContentType:   req.ContentType,
		URL:           req.URL,
		CreatorID:     userID,
	}
	if err := s.repo.Create(ctx, media); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach media")
	}
	if err := s.counter.RecountRelated(ctx, observationID); err != nil {
		s.logger.Warn("failed to recount media", zap.String("observation_id", observationID), zap.Error(err))
	}
	return media, nil
}

// Detach removes a media reference. Uploaders and moderators only.
func (s *MediaService) Detach(ctx context.Context, pc *models.ProjectContext, userID, observationID, mediaID string) error {
	if _, err := s.observations.Get(ctx, pc, userID, observationID); err != nil {
		return err
	}
	media, err := s.repo.FindByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "media file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media file")
	}
	if media.ObservationID != observationID {
		return appErrors.Clone(appErrors.ErrNotFound, "media file not found")
	}
	if media.CreatorID != userID && !pc.Role.CanModerate() {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not remove this media file")
	}

	if err := s.repo.SoftDelete(ctx, mediaID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove media file")
	}
	if err := s.counter.RecountRelated(ctx, observationID); err != nil {
		s.logger.Warn("failed to recount media", zap.String("observation_id", observationID), zap.Error(err))
	}
	return nil
}
