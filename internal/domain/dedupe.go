package domain

import "time"

// DedupeEntry is the persisted record of a previously seen listing
// fingerprint. Created on first sight, never deleted by the engine.
// NormTitle and NormOrg hold the normalized fuzzy-match basis so later
// batches can compare against historical entries without re-fetching
// the original listing.
type DedupeEntry struct {
	Fingerprint string    `gorm:"type:text;primaryKey" json:"fingerprint"`
	SourceID    string    `gorm:"type:text;not null;index:idx_dedupe_source" json:"source_id"`
	NormTitle   string    `gorm:"type:text" json:"norm_title"`
	NormOrg     string    `gorm:"type:text" json:"norm_org"`
	FirstSeenAt time.Time `gorm:"index:idx_dedupe_first_seen" json:"first_seen_at"`
	Applied     bool      `gorm:"default:false" json:"applied"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for DedupeEntry.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (DedupeEntry) TableName() string {
	return "dedupe_entries"
}
