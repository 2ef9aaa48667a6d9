package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PropertyBag holds the raw field values of an observation keyed by field key.
// Values are the JSON scalars and arrays the client submitted; typed
// interpretation happens through the field variant.
type PropertyBag map[string]interface{}

// Value implements driver.Valuer, persisting the bag as JSONB.
func (p PropertyBag) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *PropertyBag) Scan(src interface{}) error {
	if src == nil {
		*p = PropertyBag{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported property bag source %T", src)
	}
	return json.Unmarshal(raw, p)
}

// Normalize replaces empty string values with nil so that "" and absent
// behave identically during validation.
func (p PropertyBag) Normalize() {
	for key, value := range p {
		if s, ok := value.(string); ok && len(s) == 0 {
			p[key] = nil
		}
	}
}

// Merge shallowly applies updates on top of the existing bag.
func (p PropertyBag) Merge(updates PropertyBag) PropertyBag {
	merged := make(PropertyBag, len(p)+len(updates))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// Geometry is an opaque geometry handle (WKT or GeoJSON encoded by the client).
type Geometry string

// Observation is a single georeferenced contribution bound to a category.
type Observation struct {
	ID         string            `db:"id" json:"id"`
	ProjectID  string            `db:"project_id" json:"project_id"`
	CategoryID string            `db:"category_id" json:"category_id"`
	Location   Geometry          `db:"location" json:"location"`
	Properties PropertyBag       `db:"properties" json:"properties"`
	CreatorID  string            `db:"creator_id" json:"creator_id"`
	UpdatorID  *string           `db:"updator_id" json:"updator_id,omitempty"`
	Status     ObservationStatus `db:"status" json:"status"`
	Version    int               `db:"version" json:"version"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`

	ReviewComment *string `db:"review_comment" json:"review_comment,omitempty"`

	// Derived columns, maintained on every write.
	DisplayFieldString *string    `db:"display_field_string" json:"display_field_string,omitempty"`
	ExpiryField        *time.Time `db:"expiry_field" json:"expiry_field,omitempty"`
	SearchIndex        string     `db:"search_index" json:"-"`
	NumMedia           int        `db:"num_media" json:"num_media"`
	NumComments        int        `db:"num_comments" json:"num_comments"`
}

// ObservationVersion is one immutable historical state of an observation.
type ObservationVersion struct {
	ObservationID string            `db:"observation_id" json:"observation_id"`
	Version       int               `db:"version" json:"version"`
	Properties    PropertyBag       `db:"properties" json:"properties"`
	Status        ObservationStatus `db:"status" json:"status"`
	UpdatorID     *string           `db:"updator_id" json:"updator_id,omitempty"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}
