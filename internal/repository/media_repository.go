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

// MediaRepository manages persistence for media file metadata.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository constructs a MediaRepository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, observation_id, name, description, content_type, url, creator_id, status, created_at`

// FindByID fetches a media record by ID.
func (r *MediaRepository) FindByID(ctx context.Context, id string) (*models.MediaFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM media_files WHERE id = $1 AND status <> $2 LIMIT 1`, mediaColumns)
	var media models.MediaFile
	if err := r.db.GetContext(ctx, &media, query, id, models.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find media file: %w", err)
	}
	return &media, nil
}

// ListByObservation returns the non-deleted media records of an observation.
func (r *MediaRepository) ListByObservation(ctx context.Context, observationID string) ([]models.MediaFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM media_files WHERE observation_id = $1 AND status <> $2 ORDER BY created_at ASC`, mediaColumns)
	var files []models.MediaFile
	if err := r.db.SelectContext(ctx, &files, query, observationID, models.StatusDeleted); err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	return files, nil
}

// Create inserts a new media record.
func (r *MediaRepository) Create(ctx context.Context, media *models.MediaFile) error {
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.Status == "" {
		media.Status = models.StatusActive
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO media_files (id, observation_id, name, description, content_type, url, creator_id, status, created_at)
VALUES (:id, :observation_id, :name, :description, :content_type, :url, :creator_id, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, media); err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	return nil
}

// SoftDelete marks a media record deleted.
func (r *MediaRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE media_files SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.StatusDeleted); err != nil {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}
