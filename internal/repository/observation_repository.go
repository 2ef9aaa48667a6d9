package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/geokey/geokey-api/internal/models"
	"github.com/geokey/geokey-api/internal/query"
)

// ObservationRepository manages persistence for observations and their
// version history.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs an ObservationRepository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

const observationColumns = `id, project_id, category_id, location, properties, creator_id, updator_id, status, version, review_comment, display_field_string, expiry_field, search_index, num_media, num_comments, created_at, updated_at`

// FindByID fetches an observation by ID, soft-deleted ones included only
// when requested.
func (r *ObservationRepository) FindByID(ctx context.Context, id string) (*models.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM observations WHERE id = $1 AND status <> $2 LIMIT 1`, observationColumns)
	var obs models.Observation
	if err := r.db.GetContext(ctx, &obs, query, id, models.ObservationDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find observation: %w", err)
	}
	return &obs, nil
}

// Create inserts a new observation and records its first version in one
// transaction.
func (r *ObservationRepository) Create(ctx context.Context, obs *models.Observation) error {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Version == 0 {
		obs.Version = 1
	}
	now := time.Now().UTC()
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}
	obs.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create observation: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO observations (id, project_id, category_id, location, properties, creator_id, updator_id, status, version, review_comment, display_field_string, expiry_field, search_index, num_media, num_comments, created_at, updated_at)
VALUES (:id, :project_id, :category_id, :location, :properties, :creator_id, :updator_id, :status, :version, :review_comment, :display_field_string, :expiry_field, :search_index, :num_media, :num_comments, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, obs); err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	if err := appendVersion(ctx, tx, obs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update persists the observation's current state and appends it to the
// version history in one transaction. The caller decides whether the version
// counter advanced.
func (r *ObservationRepository) Update(ctx context.Context, obs *models.Observation) error {
	obs.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update observation: %w", err)
	}
	defer tx.Rollback()

	const update = `UPDATE observations SET location = :location, properties = :properties, updator_id = :updator_id,
status = :status, version = :version, review_comment = :review_comment, display_field_string = :display_field_string,
expiry_field = :expiry_field, search_index = :search_index, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, obs); err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	if err := appendVersion(ctx, tx, obs); err != nil {
		return err
	}
	return tx.Commit()
}

func appendVersion(ctx context.Context, tx *sqlx.Tx, obs *models.Observation) error {
	const query = `INSERT INTO observation_versions (observation_id, version, properties, status, updator_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (observation_id, version) DO UPDATE SET properties = EXCLUDED.properties, status = EXCLUDED.status, updator_id = EXCLUDED.updator_id, updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, obs.ID, obs.Version, obs.Properties, obs.Status, obs.UpdatorID, obs.UpdatedAt); err != nil {
		return fmt.Errorf("append observation version: %w", err)
	}
	return nil
}

// SoftDelete marks an observation deleted.
func (r *ObservationRepository) SoftDelete(ctx context.Context, id, updatorID string) error {
	const query = `UPDATE observations SET status = $2, updator_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ObservationDeleted, updatorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	return nil
}

// Search returns observations matching the predicate, newest first, with the
// total match count. The predicate is lowered into the WHERE clause.
func (r *ObservationRepository) Search(ctx context.Context, node query.Node, page, pageSize int) ([]models.Observation, int, error) {
	where, args := query.Lower(node, 0)

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT %s FROM observations WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		observationColumns, where, pageSize, offset)
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("search observations: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM observations WHERE %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count observations: %w", err)
	}
	return observations, total, nil
}

// ListVersions returns the historical states below the observation's current
// version, oldest first.
func (r *ObservationRepository) ListVersions(ctx context.Context, observationID string, below int) ([]models.ObservationVersion, error) {
	const query = `SELECT observation_id, version, properties, status, updator_id, updated_at
FROM observation_versions WHERE observation_id = $1 AND version < $2 ORDER BY version ASC`
	var versions []models.ObservationVersion
	if err := r.db.SelectContext(ctx, &versions, query, observationID, below); err != nil {
		return nil, fmt.Errorf("list observation versions: %w", err)
	}
	return versions, nil
}

// RecountRelated refreshes the denormalized media and comment counters.
func (r *ObservationRepository) RecountRelated(ctx context.Context, observationID string) error {
	const query = `UPDATE observations SET
num_media = (SELECT COUNT(*) FROM media_files WHERE observation_id = $1 AND status = $2),
num_comments = (SELECT COUNT(*) FROM comments WHERE observation_id = $1 AND status = $2),
updated_at = $3
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, observationID, models.StatusActive, time.Now().UTC()); err != nil {
		return fmt.Errorf("recount observation relations: %w", err)
	}
	return nil
}

// IterateByProject streams a project's non-deleted observations in batches,
// invoking fn per batch. Used by the search reindex job.
func (r *ObservationRepository) IterateByProject(ctx context.Context, projectID string, batchSize int, fn func([]models.Observation) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	lastID := ""
	for {
		query := fmt.Sprintf(`SELECT %s FROM observations WHERE project_id = $1 AND status <> $2 AND id > $3 ORDER BY id ASC LIMIT $4`, observationColumns)
		var batch []models.Observation
		if err := r.db.SelectContext(ctx, &batch, query, projectID, models.ObservationDeleted, lastID, batchSize); err != nil {
			return fmt.Errorf("iterate observations: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
	}
}

// UpdateDerived rewrites only the derived columns of an observation, used by
// the reindex job after schema changes.
func (r *ObservationRepository) UpdateDerived(ctx context.Context, obs *models.Observation) error {
	const query = `UPDATE observations SET display_field_string = $2, expiry_field = $3, search_index = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, obs.ID, obs.DisplayFieldString, obs.ExpiryField, obs.SearchIndex, time.Now().UTC()); err != nil {
		return fmt.Errorf("update derived columns: %w", err)
	}
	return nil
}
