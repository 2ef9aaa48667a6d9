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

type commentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	ListByObservation(ctx context.Context, observationID string) ([]models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
	SoftDelete(ctx context.Context, id string) error
	ResolveReview(ctx context.Context, id string) error
	CountOpenReviews(ctx context.Context, observationID string) (int, error)
}

type commentObservationService interface {
	Get(ctx context.Context, pc *models.ProjectContext, userID, id string) (*models.Observation, error)
	Moderate(ctx context.Context, pc *models.ProjectContext, userID, id string, target models.ObservationStatus, comment string) (*models.Observation, error)
}

type relatedCounter interface {
	RecountRelated(ctx context.Context, observationID string) error
}

// CommentService manages threaded comments on observations. A comment posted
// with a review flag moves an active observation into moderation.
type CommentService struct {
	repo         commentRepository
	observations commentObservationService
	counter      relatedCounter
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewCommentService constructs a CommentService.
func NewCommentService(repo commentRepository, observations commentObservationService, counter relatedCounter, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CommentService{repo: repo, observations: observations, counter: counter, validator: validate, logger: logger}
}

// CommentRequest is the comment payload.
type CommentRequest struct {
	Text         string  `json:"text" validate:"required"`
	RespondsToID *string `json:"responds_to_id"`
	FlagReview   bool    `json:"flag_review"`
}

// List returns the comment thread of an observation the user may see.
func (s *CommentService) List(ctx context.Context, pc *models.ProjectContext, userID, observationID string) ([]models.Comment, error) {
	if _, err := s.observations.Get(ctx, pc, userID, observationID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListByObservation(ctx, observationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// Create posts a comment. With FlagReview set the observation is moved to
// review when it is currently active.
func (s *CommentService) Create(ctx context.Context, pc *models.ProjectContext, userID, observationID string, req CommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	obs, err := s.observations.Get(ctx, pc, userID, observationID)
	if err != nil {
		return nil, err
	}
	if req.RespondsToID != nil {
		parent, err := s.repo.FindByID(ctx, *req.RespondsToID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "parent comment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent comment")
		}
		if parent.ObservationID != observationID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent comment belongs to another observation")
		}
		if parent.RespondsToID != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "threads only nest one level deep")
		}
	}

	comment := &models.Comment{
		ObservationID: observationID,
		RespondsToID:  req.RespondsToID,
		Text:          req.Text,
		CreatorID:     userID,
	}
	if req.FlagReview {
		open := models.CommentReviewOpen
		comment.ReviewStatus = &open
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}

	if req.FlagReview && obs.Status == models.ObservationActive {
		if _, err := s.observations.Moderate(ctx, adminContext(pc), userID, observationID, models.ObservationReview, req.Text); err != nil {
			s.logger.Warn("failed to flag observation for review",
				zap.String("observation_id", observationID), zap.Error(err))
		}
	}

	if err := s.counter.RecountRelated(ctx, observationID); err != nil {
		s.logger.Warn("failed to recount comments", zap.String("observation_id", observationID), zap.Error(err))
	}
	return comment, nil
}

// Delete removes a comment and its replies. Authors and moderators only.
// Resolving the last open review flag moves the observation back to active.
func (s *CommentService) Delete(ctx context.Context, pc *models.ProjectContext, userID, observationID, commentID string) error {
	if _, err := s.observations.Get(ctx, pc, userID, observationID); err != nil {
		return err
	}
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.ObservationID != observationID {
		return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}
	if comment.CreatorID != userID && !pc.Role.CanModerate() {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not delete this comment")
	}

	if err := s.repo.SoftDelete(ctx, commentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}

	if comment.ReviewStatus != nil && *comment.ReviewStatus == models.CommentReviewOpen {
		if err := s.maybeReactivate(ctx, pc, userID, observationID); err != nil {
			s.logger.Warn("failed to restore observation after review resolution",
				zap.String("observation_id", observationID), zap.Error(err))
		}
	}

	if err := s.counter.RecountRelated(ctx, observationID); err != nil {
		s.logger.Warn("failed to recount comments", zap.String("observation_id", observationID), zap.Error(err))
	}
	return nil
}

// Resolve closes an open review flag. Moderators only. The observation
// returns to active once no open flags remain.
func (s *CommentService) Resolve(ctx context.Context, pc *models.ProjectContext, userID, observationID, commentID string) error {
	if !pc.Role.CanModerate() {
		return appErrors.Clone(appErrors.ErrForbidden, "only moderators may resolve review flags")
	}
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.ObservationID != observationID {
		return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}
	if err := s.repo.ResolveReview(ctx, commentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve review flag")
	}
	return s.maybeReactivate(ctx, pc, userID, observationID)
}

func (s *CommentService) maybeReactivate(ctx context.Context, pc *models.ProjectContext, userID, observationID string) error {
	open, err := s.repo.CountOpenReviews(ctx, observationID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	obs, err := s.observations.Get(ctx, pc, userID, observationID)
	if err != nil {
		return err
	}
	if obs.Status != models.ObservationReview {
		return nil
	}
	_, err = s.observations.Moderate(ctx, pc, userID, observationID, models.ObservationActive, "")
	return err
}

// adminContext lifts the caller to a moderating role for system-driven
// transitions like review flagging, which any commenter may trigger.
func adminContext(pc *models.ProjectContext) *models.ProjectContext {
	lifted := *pc
	if !lifted.Role.CanModerate() {
		lifted.Role = models.RoleModerator
	}
	return &lifted
}
