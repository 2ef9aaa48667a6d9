package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/geokey/geokey-api/internal/models"
)

// CategoryRepository manages persistence for categories, their fields and
// lookup values.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categoryColumns = `id, project_id, name, description, ordering, status, default_status, display_field_id, expiry_field_id, colour, symbol, creator_id, created_at, updated_at`

const fieldColumns = `id, category_id, name, key, description, required, ordering, status, field_type, max_length, min_val, max_val, textarea`

// FindByID fetches a category with its fields and lookup values. Deleted
// categories are not returned.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE id = $1 AND status <> $2 LIMIT 1`, categoryColumns)
	var category models.Category
	if err := r.db.GetContext(ctx, &category, query, id, models.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find category: %w", err)
	}
	if err := r.attachFields(ctx, []*models.Category{&category}); err != nil {
		return nil, err
	}
	return &category, nil
}

// ListByProject returns the non-deleted categories of a project in their
// configured order, fields attached.
func (r *CategoryRepository) ListByProject(ctx context.Context, projectID string) ([]models.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM categories WHERE project_id = $1 AND status <> $2 ORDER BY ordering ASC, created_at ASC`, categoryColumns)
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query, projectID, models.StatusDeleted); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	refs := make([]*models.Category, len(categories))
	for i := range categories {
		refs[i] = &categories[i]
	}
	if err := r.attachFields(ctx, refs); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoryRepository) attachFields(ctx context.Context, categories []*models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	ids := make([]string, len(categories))
	byID := make(map[string]*models.Category, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	query := fmt.Sprintf(`SELECT %s FROM fields WHERE category_id = ANY($1) AND status <> $2 ORDER BY ordering ASC, created_at ASC`, fieldColumns)
	var fields []models.Field
	if err := r.db.SelectContext(ctx, &fields, query, pq.Array(ids), models.StatusDeleted); err != nil {
		return fmt.Errorf("list fields: %w", err)
	}

	fieldIDs := make([]string, len(fields))
	fieldByID := make(map[string]*models.Field, len(fields))
	for i := range fields {
		fieldIDs[i] = fields[i].ID
	}

	for i := range fields {
		c := byID[fields[i].CategoryID]
		c.Fields = append(c.Fields, fields[i])
	}
	for _, c := range categories {
		for i := range c.Fields {
			fieldByID[c.Fields[i].ID] = &c.Fields[i]
		}
	}

	if len(fieldIDs) == 0 {
		return nil
	}
	const lookupQuery = `SELECT id, field_id, name, status FROM lookup_values WHERE field_id = ANY($1) AND status <> $2 ORDER BY id ASC`
	var values []models.LookupValue
	if err := r.db.SelectContext(ctx, &values, lookupQuery, pq.Array(fieldIDs), models.StatusDeleted); err != nil {
		return fmt.Errorf("list lookup values: %w", err)
	}
	for _, v := range values {
		f := fieldByID[v.FieldID]
		f.LookupValues = append(f.LookupValues, v)
	}
	return nil
}

// Create inserts a new category at the end of the project's ordering.
func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.Status == "" {
		category.Status = models.StatusActive
	}
	if category.DefaultStatus == "" {
		category.DefaultStatus = models.ObservationPending
	}
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	const nextOrder = `SELECT COALESCE(MAX(ordering), -1) + 1 FROM categories WHERE project_id = $1 AND status <> $2`
	if err := r.db.GetContext(ctx, &category.Order, nextOrder, category.ProjectID, models.StatusDeleted); err != nil {
		return fmt.Errorf("next category order: %w", err)
	}

	const query = `INSERT INTO categories (id, project_id, name, description, ordering, status, default_status, display_field_id, expiry_field_id, colour, symbol, creator_id, created_at, updated_at)
VALUES (:id, :project_id, :name, :description, :ordering, :status, :default_status, :display_field_id, :expiry_field_id, :colour, :symbol, :creator_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Update modifies mutable category fields.
func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	category.UpdatedAt = time.Now().UTC()
	const query = `UPDATE categories SET name = :name, description = :description, status = :status,
default_status = :default_status, display_field_id = :display_field_id, expiry_field_id = :expiry_field_id,
colour = :colour, symbol = :symbol, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// ReorderFields persists a new ordering for the category's fields in one
// transaction. The ids slice holds every field id in its new position.
func (r *CategoryRepository) ReorderFields(ctx context.Context, categoryID string, ids []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder fields: %w", err)
	}
	defer tx.Rollback()

	const query = `UPDATE fields SET ordering = $3, updated_at = $4 WHERE id = $1 AND category_id = $2`
	now := time.Now().UTC()
	for position, id := range ids {
		res, err := tx.ExecContext(ctx, query, id, categoryID, position, now)
		if err != nil {
			return fmt.Errorf("reorder field %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder field %s: %w", id, err)
		}
		if affected == 0 {
			return fmt.Errorf("reorder field %s: %w", id, sql.ErrNoRows)
		}
	}
	return tx.Commit()
}

// SoftDelete marks a category and its fields deleted and removes the
// category's key from every filter map in the project, all in one
// transaction.
func (r *CategoryRepository) SoftDelete(ctx context.Context, projectID, categoryID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete category: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	const deleteCategory = `UPDATE categories SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, deleteCategory, categoryID, models.StatusDeleted, now); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	const deleteFields = `UPDATE fields SET status = $2, updated_at = $3 WHERE category_id = $1`
	if _, err := tx.ExecContext(ctx, deleteFields, categoryID, models.StatusDeleted, now); err != nil {
		return fmt.Errorf("delete category fields: %w", err)
	}
	const deleteObservations = `UPDATE observations SET status = $2, updated_at = $3 WHERE category_id = $1 AND status <> $2`
	if _, err := tx.ExecContext(ctx, deleteObservations, categoryID, models.ObservationDeleted, now); err != nil {
		return fmt.Errorf("delete category observations: %w", err)
	}

	// Drop the category key from group and subset filter maps so stale
	// references never reach the filter compiler.
	const cleanGroups = `UPDATE user_groups SET filters = filters - $2, updated_at = $3 WHERE project_id = $1 AND filters ? $2`
	if _, err := tx.ExecContext(ctx, cleanGroups, projectID, categoryID, now); err != nil {
		return fmt.Errorf("clean group filters: %w", err)
	}
	const cleanSubsets = `UPDATE subsets SET filters = filters - $2, updated_at = $3 WHERE project_id = $1 AND filters ? $2`
	if _, err := tx.ExecContext(ctx, cleanSubsets, projectID, categoryID, now); err != nil {
		return fmt.Errorf("clean subset filters: %w", err)
	}
	return tx.Commit()
}

// CreateField inserts a field at the end of the category's ordering.
func (r *CategoryRepository) CreateField(ctx context.Context, field *models.Field) error {
	if field.ID == "" {
		field.ID = uuid.NewString()
	}
	if field.Status == "" {
		field.Status = models.StatusActive
	}
	now := time.Now().UTC()

	const nextOrder = `SELECT COALESCE(MAX(ordering), -1) + 1 FROM fields WHERE category_id = $1 AND status <> $2`
	if err := r.db.GetContext(ctx, &field.Order, nextOrder, field.CategoryID, models.StatusDeleted); err != nil {
		return fmt.Errorf("next field order: %w", err)
	}

	const query = `INSERT INTO fields (id, category_id, name, key, description, required, ordering, status, field_type, max_length, min_val, max_val, textarea, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`
	if _, err := r.db.ExecContext(ctx, query, field.ID, field.CategoryID, field.Name, field.Key,
		field.Description, field.Required, field.Order, field.Status, field.Type,
		field.MaxLength, field.MinVal, field.MaxVal, field.Textarea, now); err != nil {
		return fmt.Errorf("create field: %w", err)
	}
	return nil
}

// UpdateField modifies mutable field attributes. Key and type are immutable
// once created.
func (r *CategoryRepository) UpdateField(ctx context.Context, field *models.Field) error {
	const query = `UPDATE fields SET name = $2, description = $3, required = $4, status = $5,
max_length = $6, min_val = $7, max_val = $8, textarea = $9, updated_at = $10 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, field.ID, field.Name, field.Description,
		field.Required, field.Status, field.MaxLength, field.MinVal, field.MaxVal,
		field.Textarea, time.Now().UTC()); err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	return nil
}

// SoftDeleteField marks a field deleted, detaches it from the category's
// display and expiry selection when referenced, and removes the field's key
// from every filter map in the project, all in one transaction.
func (r *CategoryRepository) SoftDeleteField(ctx context.Context, projectID, categoryID, fieldID, fieldKey string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete field: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	const deleteField = `UPDATE fields SET status = $3, updated_at = $4 WHERE id = $1 AND category_id = $2`
	if _, err := tx.ExecContext(ctx, deleteField, fieldID, categoryID, models.StatusDeleted, now); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	const detach = `UPDATE categories SET display_field_id = NULLIF(display_field_id, $2),
expiry_field_id = NULLIF(expiry_field_id, $2), updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, detach, categoryID, fieldID, now); err != nil {
		return fmt.Errorf("detach field from category: %w", err)
	}

	const cleanGroups = `UPDATE user_groups SET filters = filters #- ARRAY[$2, $3], updated_at = $4 WHERE project_id = $1 AND filters -> $2 ? $3`
	if _, err := tx.ExecContext(ctx, cleanGroups, projectID, categoryID, fieldKey, now); err != nil {
		return fmt.Errorf("clean group filters: %w", err)
	}
	const cleanSubsets = `UPDATE subsets SET filters = filters #- ARRAY[$2, $3], updated_at = $4 WHERE project_id = $1 AND filters -> $2 ? $3`
	if _, err := tx.ExecContext(ctx, cleanSubsets, projectID, categoryID, fieldKey, now); err != nil {
		return fmt.Errorf("clean subset filters: %w", err)
	}
	return tx.Commit()
}

// FieldKeyExists checks whether a key is already taken within a category.
func (r *CategoryRepository) FieldKeyExists(ctx context.Context, categoryID, key string) (bool, error) {
	const query = `SELECT 1 FROM fields WHERE category_id = $1 AND key = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, categoryID, key, models.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check field key: %w", err)
	}
	return true, nil
}

// CreateLookupValue appends an admissible value to a lookup field. The id is
// assigned by the database sequence.
func (r *CategoryRepository) CreateLookupValue(ctx context.Context, value *models.LookupValue) error {
	if value.Status == "" {
		value.Status = models.StatusActive
	}
	const query = `INSERT INTO lookup_values (field_id, name, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.GetContext(ctx, &value.ID, query, value.FieldID, value.Name, value.Status, time.Now().UTC()); err != nil {
		return fmt.Errorf("create lookup value: %w", err)
	}
	return nil
}

// RenameLookupValue changes the display name of a lookup value.
func (r *CategoryRepository) RenameLookupValue(ctx context.Context, fieldID string, id int64, name string) error {
	const query = `UPDATE lookup_values SET name = $3 WHERE id = $1 AND field_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, fieldID, name)
	if err != nil {
		return fmt.Errorf("rename lookup value: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename lookup value: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateLookupValue retires a lookup value without breaking stored
// observations that reference it.
func (r *CategoryRepository) DeactivateLookupValue(ctx context.Context, fieldID string, id int64) error {
	const query = `UPDATE lookup_values SET status = $3 WHERE id = $1 AND field_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, fieldID, models.StatusInactive); err != nil {
		return fmt.Errorf("deactivate lookup value: %w", err)
	}
	return nil
}
