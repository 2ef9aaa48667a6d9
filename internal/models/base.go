package models

// Status is the lifecycle state shared by categories, fields and related rows.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// ObservationStatus tracks the moderation lifecycle of an observation.
type ObservationStatus string

const (
	ObservationDraft   ObservationStatus = "draft"
	ObservationPending ObservationStatus = "pending"
	ObservationActive  ObservationStatus = "active"
	ObservationReview  ObservationStatus = "review"
	ObservationDeleted ObservationStatus = "deleted"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
