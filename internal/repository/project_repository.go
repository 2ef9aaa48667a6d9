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

// ProjectRepository manages persistence for projects and admin membership.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs a ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, description, is_private, is_locked, everyone_contributes, creator_id, status, created_at, updated_at`

// FindByID fetches a project by ID. Soft-deleted projects are not returned.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1 AND status <> $2 LIMIT 1`, projectColumns)
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id, models.StatusDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return &project, nil
}

// ListVisible returns projects the user may see: public ones plus private
// ones where the user is an admin or a group member. An empty userID lists
// public projects only.
func (r *ProjectRepository) ListVisible(ctx context.Context, userID string) ([]models.Project, error) {
	var projects []models.Project
	if userID == "" {
		query := fmt.Sprintf(`SELECT %s FROM projects WHERE status = $1 AND is_private = FALSE ORDER BY name ASC`, projectColumns)
		if err := r.db.SelectContext(ctx, &projects, query, models.StatusActive); err != nil {
			return nil, fmt.Errorf("list public projects: %w", err)
		}
		return projects, nil
	}

	query := fmt.Sprintf(`SELECT DISTINCT p.%s FROM projects p
LEFT JOIN project_admins pa ON pa.project_id = p.id AND pa.user_id = $2
LEFT JOIN user_groups g ON g.project_id = p.id
LEFT JOIN user_group_members gm ON gm.group_id = g.id AND gm.user_id = $2
WHERE p.status = $1 AND (p.is_private = FALSE OR p.creator_id = $2 OR pa.user_id IS NOT NULL OR gm.user_id IS NOT NULL)
ORDER BY p.name ASC`, "id, p.name, p.description, p.is_private, p.is_locked, p.everyone_contributes, p.creator_id, p.status, p.created_at, p.updated_at")
	if err := r.db.SelectContext(ctx, &projects, query, models.StatusActive, userID); err != nil {
		return nil, fmt.Errorf("list visible projects: %w", err)
	}
	return projects, nil
}

// Create inserts a new project and registers the creator as admin.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.StatusActive
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer tx.Rollback()

	const insertProject = `INSERT INTO projects (id, name, description, is_private, is_locked, everyone_contributes, creator_id, status, created_at, updated_at)
VALUES (:id, :name, :description, :is_private, :is_locked, :everyone_contributes, :creator_id, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertProject, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	const insertAdmin = `INSERT INTO project_admins (project_id, user_id, created_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertAdmin, project.ID, project.CreatorID, now); err != nil {
		return fmt.Errorf("register project creator: %w", err)
	}
	return tx.Commit()
}

// Update modifies mutable project fields.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET name = :name, description = :description, is_private = :is_private,
is_locked = :is_locked, everyone_contributes = :everyone_contributes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// SoftDelete marks a project as deleted.
func (r *ProjectRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.StatusDeleted, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// IsAdmin reports whether the user is a registered project admin.
func (r *ProjectRepository) IsAdmin(ctx context.Context, projectID, userID string) (bool, error) {
	const query = `SELECT 1 FROM project_admins WHERE project_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, projectID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check project admin: %w", err)
	}
	return true, nil
}

// AddAdmin registers a user as project admin.
func (r *ProjectRepository) AddAdmin(ctx context.Context, projectID, userID string) error {
	const query = `INSERT INTO project_admins (project_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, projectID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add project admin: %w", err)
	}
	return nil
}

// RemoveAdmin removes a user's admin registration.
func (r *ProjectRepository) RemoveAdmin(ctx context.Context, projectID, userID string) error {
	const query = `DELETE FROM project_admins WHERE project_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, projectID, userID); err != nil {
		return fmt.Errorf("remove project admin: %w", err)
	}
	return nil
}

// ListAdmins returns the admin user ids of a project.
func (r *ProjectRepository) ListAdmins(ctx context.Context, projectID string) ([]string, error) {
	const query = `SELECT user_id FROM project_admins WHERE project_id = $1 ORDER BY created_at ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, projectID); err != nil {
		return nil, fmt.Errorf("list project admins: %w", err)
	}
	return ids, nil
}
