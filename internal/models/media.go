package models

import "time"

// MediaFile records metadata of a file attached to an observation. Blob
// storage lives outside this service; only the reference is kept.
type MediaFile struct {
	ID            string    `db:"id" json:"id"`
	ObservationID string    `db:"observation_id" json:"observation_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	ContentType   string    `db:"content_type" json:"content_type"`
	URL           string    `db:"url" json:"url"`
	CreatorID     string    `db:"creator_id" json:"creator_id"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
