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

// SubsetRepository manages persistence for subsets.
type SubsetRepository struct {
	db *sqlx.DB
}

// NewSubsetRepository constructs a SubsetRepository.
func NewSubsetRepository(db *sqlx.DB) *SubsetRepository {
	return &SubsetRepository{db: db}
}

const subsetColumns = `id, project_id, name, description, creator_id, filters, created_at, updated_at`

// FindByID fetches a subset by ID.
func (r *SubsetRepository) FindByID(ctx context.Context, id string) (*models.Subset, error) {
	query := fmt.Sprintf(`SELECT %s FROM subsets WHERE id = $1 LIMIT 1`, subsetColumns)
	var subset models.Subset
	if err := r.db.GetContext(ctx, &subset, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subset: %w", err)
	}
	return &subset, nil
}

// ListByProject returns the subsets of a project.
func (r *SubsetRepository) ListByProject(ctx context.Context, projectID string) ([]models.Subset, error) {
	query := fmt.Sprintf(`SELECT %s FROM subsets WHERE project_id = $1 ORDER BY name ASC`, subsetColumns)
	var subsets []models.Subset
	if err := r.db.SelectContext(ctx, &subsets, query, projectID); err != nil {
		return nil, fmt.Errorf("list subsets: %w", err)
	}
	return subsets, nil
}

// Create inserts a new subset.
func (r *SubsetRepository) Create(ctx context.Context, subset *models.Subset) error {
	if subset.ID == "" {
		subset.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subset.CreatedAt.IsZero() {
		subset.CreatedAt = now
	}
	subset.UpdatedAt = now
	const query = `INSERT INTO subsets (id, project_id, name, description, creator_id, filters, created_at, updated_at)
VALUES (:id, :project_id, :name, :description, :creator_id, :filters, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subset); err != nil {
		return fmt.Errorf("create subset: %w", err)
	}
	return nil
}

// Update modifies subset attributes including the filter map.
func (r *SubsetRepository) Update(ctx context.Context, subset *models.Subset) error {
	subset.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subsets SET name = :name, description = :description, filters = :filters, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subset); err != nil {
		return fmt.Errorf("update subset: %w", err)
	}
	return nil
}

// Delete removes a subset.
func (r *SubsetRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subsets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subset: %w", err)
	}
	return nil
}
