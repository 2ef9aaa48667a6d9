package models

import "time"

// CommentReview marks a comment that requests moderation of its observation.
type CommentReview string

const (
	CommentReviewOpen     CommentReview = "open"
	CommentReviewResolved CommentReview = "resolved"
)

// Comment is a threaded remark on an observation.
type Comment struct {
	ID            string         `db:"id" json:"id"`
	ObservationID string         `db:"observation_id" json:"observation_id"`
	RespondsToID  *string        `db:"responds_to_id" json:"responds_to_id,omitempty"`
	Text          string         `db:"text" json:"text"`
	CreatorID     string         `db:"creator_id" json:"creator_id"`
	Status        Status         `db:"status" json:"status"`
	ReviewStatus  *CommentReview `db:"review_status" json:"review_status,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
