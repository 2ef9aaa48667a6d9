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

// UserGroupRepository manages persistence for user groups, their membership
// and filter maps.
type UserGroupRepository struct {
	db *sqlx.DB
}

// NewUserGroupRepository constructs a UserGroupRepository.
func NewUserGroupRepository(db *sqlx.DB) *UserGroupRepository {
	return &UserGroupRepository{db: db}
}

const groupColumns = `id, project_id, name, description, can_moderate, can_contribute, filters, created_at, updated_at`

// FindByID fetches a group with its member ids.
func (r *UserGroupRepository) FindByID(ctx context.Context, id string) (*models.UserGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_groups WHERE id = $1 LIMIT 1`, groupColumns)
	var group models.UserGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user group: %w", err)
	}
	const members = `SELECT user_id FROM user_group_members WHERE group_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &group.MemberIDs, members, id); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return &group, nil
}

// ListByProject returns the groups of a project.
func (r *UserGroupRepository) ListByProject(ctx context.Context, projectID string) ([]models.UserGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_groups WHERE project_id = $1 ORDER BY name ASC`, groupColumns)
	var groups []models.UserGroup
	if err := r.db.SelectContext(ctx, &groups, query, projectID); err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return groups, nil
}

// ListForUser returns the project groups the user belongs to.
func (r *UserGroupRepository) ListForUser(ctx context.Context, projectID, userID string) ([]models.UserGroup, error) {
	const query = `SELECT g.id, g.project_id, g.name, g.description, g.can_moderate, g.can_contribute, g.filters, g.created_at, g.updated_at
FROM user_groups g
JOIN user_group_members gm ON gm.group_id = g.id
WHERE g.project_id = $1 AND gm.user_id = $2
ORDER BY g.name ASC`
	var groups []models.UserGroup
	if err := r.db.SelectContext(ctx, &groups, query, projectID, userID); err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	return groups, nil
}

// Create inserts a new user group.
func (r *UserGroupRepository) Create(ctx context.Context, group *models.UserGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	const query = `INSERT INTO user_groups (id, project_id, name, description, can_moderate, can_contribute, filters, created_at, updated_at)
VALUES (:id, :project_id, :name, :description, :can_moderate, :can_contribute, :filters, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create user group: %w", err)
	}
	return nil
}

// Update modifies group attributes including the filter map.
func (r *UserGroupRepository) Update(ctx context.Context, group *models.UserGroup) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE user_groups SET name = :name, description = :description, can_moderate = :can_moderate,
can_contribute = :can_contribute, filters = :filters, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update user group: %w", err)
	}
	return nil
}

// Delete removes a group and its membership rows.
func (r *UserGroupRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete group: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_group_members WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("delete group members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user group: %w", err)
	}
	return tx.Commit()
}

// AddMember registers a user in the group.
func (r *UserGroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	const query = `INSERT INTO user_group_members (group_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from the group.
func (r *UserGroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	const query = `DELETE FROM user_group_members WHERE group_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}
