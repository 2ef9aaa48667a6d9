package models

import "time"

// ProjectRole is the effective role of a user within a project.
type ProjectRole string

const (
	RoleAdmin       ProjectRole = "admin"
	RoleModerator   ProjectRole = "moderator"
	RoleContributor ProjectRole = "contributor"
	RoleViewer      ProjectRole = "viewer"
	RoleNone        ProjectRole = "none"
)

// Project groups categories, observations and user groups.
type Project struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Description         string    `db:"description" json:"description"`
	IsPrivate           bool      `db:"is_private" json:"is_private"`
	IsLocked            bool      `db:"is_locked" json:"is_locked"`
	EveryoneContributes bool      `db:"everyone_contributes" json:"everyone_contributes"`
	CreatorID           string    `db:"creator_id" json:"creator_id"`
	Status              Status    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// ProjectContext bundles a project with everything needed to resolve
// the viewer's permissions: admin membership and group roles.
type ProjectContext struct {
	Project Project
	Role    ProjectRole
	Groups  []UserGroup
}

// CanModerate reports whether the role may moderate contributions.
func (r ProjectRole) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

// CanContribute reports whether the role may create contributions.
func (r ProjectRole) CanContribute() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleContributor
}
