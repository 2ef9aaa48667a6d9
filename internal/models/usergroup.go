package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Rule constrains observations of one category. Reserved keys min_date and
// max_date bound created_at; every other key addresses a field by key.
type Rule map[string]interface{}

// FilterMap maps a category id to the rule scoping that category. A nil map
// means "no scoping"; an empty map means "nothing visible"; a category id
// with an empty rule means "everything in that category".
type FilterMap map[string]Rule

// Value implements driver.Valuer, persisting the map as JSONB. nil maps to NULL.
func (m FilterMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *FilterMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported filter map source %T", src)
	}
	return json.Unmarshal(raw, m)
}

// UserGroup is a named set of project members carrying role flags and an
// optional per-category filter map scoping what its members see.
type UserGroup struct {
	ID            string    `db:"id" json:"id"`
	ProjectID     string    `db:"project_id" json:"project_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	CanModerate   bool      `db:"can_moderate" json:"can_moderate"`
	CanContribute bool      `db:"can_contribute" json:"can_contribute"`
	Filters       FilterMap `db:"filters" json:"filters,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	MemberIDs []string `db:"-" json:"member_ids,omitempty"`
}
