package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/geokey/geokey-api/internal/models"
)

// CommentRepository manages persistence for observation comments.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository constructs a CommentRepository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = `id, observation_id, responds_to_id, text, creator_id, status, review_status, created_at`

// FindByID fetches a comment by ID.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE id = $1 AND status <> $2 LIMIT 1`, commentColumns)
	var comment models.Comment
	if err := r.db.GetContext(ctx, &comment, query, id, models.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &comment, nil
}

// ListByObservation returns the non-deleted comments of an observation,
// oldest first so threads read top down.
func (r *CommentRepository) ListByObservation(ctx context.Context, observationID string) ([]models.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE observation_id = $1 AND status <> $2 ORDER BY created_at ASC`, commentColumns)
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, observationID, models.StatusDeleted); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.Status == "" {
		comment.Status = models.StatusActive
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comments (id, observation_id, responds_to_id, text, creator_id, status, review_status, created_at)
VALUES (:id, :observation_id, :responds_to_id, :text, :creator_id, :status, :review_status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// SoftDelete marks a comment and its replies deleted.
func (r *CommentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE comments SET status = $2 WHERE id = $1 OR responds_to_id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.StatusDeleted); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// ResolveReview marks a review comment resolved.
func (r *CommentRepository) ResolveReview(ctx context.Context, id string) error {
	const query = `UPDATE comments SET review_status = $2 WHERE id = $1 AND review_status = $3`
	if _, err := r.db.ExecContext(ctx, query, id, models.CommentReviewResolved, models.CommentReviewOpen); err != nil {
		return fmt.Errorf("resolve review comment: %w", err)
	}
	return nil
}

// CountOpenReviews returns the number of unresolved review comments on an
// observation.
func (r *CommentRepository) CountOpenReviews(ctx context.Context, observationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM comments WHERE observation_id = $1 AND status = $2 AND review_status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, observationID, models.StatusActive, models.CommentReviewOpen); err != nil {
		return 0, fmt.Errorf("count open reviews: %w", err)
	}
	return count, nil
}
