package models

import "time"

// FieldType discriminates the closed set of field variants.
type FieldType string

const (
	FieldText           FieldType = "text"
	FieldNumeric        FieldType = "numeric"
	FieldDate           FieldType = "date"
	FieldDateTime       FieldType = "datetime"
	FieldTime           FieldType = "time"
	FieldSingleLookup   FieldType = "singlelookup"
	FieldMultipleLookup FieldType = "multiplelookup"
)

// KnownFieldTypes lists every supported field variant.
var KnownFieldTypes = []FieldType{
	FieldText, FieldNumeric, FieldDate, FieldDateTime, FieldTime,
	FieldSingleLookup, FieldMultipleLookup,
}

// IsLookup reports whether the variant carries lookup values.
func (t FieldType) IsLookup() bool {
	return t == FieldSingleLookup || t == FieldMultipleLookup
}

// IsTemporal reports whether the variant may serve as a category expiry field.
func (t FieldType) IsTemporal() bool {
	return t == FieldDate || t == FieldDateTime
}

// Category defines the data structure of one type of observation.
type Category struct {
	ID             string            `db:"id" json:"id"`
	ProjectID      string            `db:"project_id" json:"project_id"`
	Name           string            `db:"name" json:"name"`
	Description    string            `db:"description" json:"description"`
	Order          int               `db:"ordering" json:"order"`
	Status         Status            `db:"status" json:"status"`
	DefaultStatus  ObservationStatus `db:"default_status" json:"default_status"`
	DisplayFieldID *string           `db:"display_field_id" json:"display_field_id,omitempty"`
	ExpiryFieldID  *string           `db:"expiry_field_id" json:"expiry_field_id,omitempty"`
	Colour         string            `db:"colour" json:"colour"`
	Symbol         *string           `db:"symbol" json:"symbol,omitempty"`
	CreatorID      string            `db:"creator_id" json:"creator_id"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`

	Fields []Field `db:"-" json:"fields,omitempty"`
}

// FieldByKey returns the field with the given key, or nil.
func (c *Category) FieldByKey(key string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Key == key {
			return &c.Fields[i]
		}
	}
	return nil
}

// FieldByID returns the field with the given id, or nil.
func (c *Category) FieldByID(id string) *Field {
	for i := range c.Fields {
		if c.Fields[i].ID == id {
			return &c.Fields[i]
		}
	}
	return nil
}

// DisplayField resolves the configured display field, or nil.
func (c *Category) DisplayField() *Field {
	if c.DisplayFieldID == nil {
		return nil
	}
	return c.FieldByID(*c.DisplayFieldID)
}

// ExpiryField resolves the configured expiry field, or nil.
func (c *Category) ExpiryField() *Field {
	if c.ExpiryFieldID == nil {
		return nil
	}
	return c.FieldByID(*c.ExpiryFieldID)
}

// Field defines the data type of one characteristic of an observation.
// The variant columns are nullable; only the ones matching Type are used.
type Field struct {
	ID          string    `db:"id" json:"id"`
	CategoryID  string    `db:"category_id" json:"category_id"`
	Name        string    `db:"name" json:"name"`
	Key         string    `db:"key" json:"key"`
	Description string    `db:"description" json:"description"`
	Required    bool      `db:"required" json:"required"`
	Order       int       `db:"ordering" json:"order"`
	Status      Status    `db:"status" json:"status"`
	Type        FieldType `db:"field_type" json:"type"`

	MaxLength *int     `db:"max_length" json:"max_length,omitempty"`
	MinVal    *float64 `db:"min_val" json:"min_val,omitempty"`
	MaxVal    *float64 `db:"max_val" json:"max_val,omitempty"`
	Textarea  bool     `db:"textarea" json:"textarea"`

	LookupValues []LookupValue `db:"-" json:"lookup_values,omitempty"`
}

// HasLookupValue reports whether the id belongs to one of the field's values,
// regardless of value status (history must stay resolvable).
func (f *Field) HasLookupValue(id int64) bool {
	for _, v := range f.LookupValues {
		if v.ID == id {
			return true
		}
	}
	return false
}

// LookupValueByID returns the value with the given id, or nil.
func (f *Field) LookupValueByID(id int64) *LookupValue {
	for i := range f.LookupValues {
		if f.LookupValues[i].ID == id {
			return &f.LookupValues[i]
		}
	}
	return nil
}

// LookupValueName resolves a lookup value name by id.
func (f *Field) LookupValueName(id int64) (string, bool) {
	for _, v := range f.LookupValues {
		if v.ID == id {
			return v.Name, true
		}
	}
	return "", false
}

// ActiveLookupValues filters the value list to active entries.
func (f *Field) ActiveLookupValues() []LookupValue {
	values := make([]LookupValue, 0, len(f.LookupValues))
	for _, v := range f.LookupValues {
		if v.Status == StatusActive {
			values = append(values, v)
		}
	}
	return values
}

// TrimInactive returns a copy of the category with inactive fields and
// inactive lookup values removed. Serves non-admin schema reads; admins see
// the full schema including retired entries.
func (c *Category) TrimInactive() *Category {
	trimmed := *c
	trimmed.Fields = make([]Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Status != StatusActive {
			continue
		}
		f.LookupValues = f.ActiveLookupValues()
		trimmed.Fields = append(trimmed.Fields, f)
	}
	return &trimmed
}

// LookupValue is one admissible value of a lookup field.
type LookupValue struct {
	ID      int64  `db:"id" json:"id"`
	FieldID string `db:"field_id" json:"field_id"`
	Name    string `db:"name" json:"name"`
	Status  Status `db:"status" json:"status"`
}
