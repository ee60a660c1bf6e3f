package domain

import "time"

// Availability is the health classification of a source.
// Values include AvailabilityAvailable, AvailabilityDegraded, and
// AvailabilityUnavailable.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityDegraded    Availability = "degraded"
	AvailabilityUnavailable Availability = "unavailable"
)

// HealthStatus is the per-source rolling health state. Updated after
// every dispatched attempt, read before every dispatch. Health reflects
// only dispatched-attempt outcomes, never inference.
type HealthStatus struct {
	Availability        Availability `json:"availability"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	LastErrorClass      ErrorClass   `json:"last_error_class,omitempty"`
	LastAttemptAt       *time.Time   `json:"last_attempt_at,omitempty"`
}

// SourceRecord is the persisted registry row for a source. Health
// counters are written as whole-row replacement only.
type SourceRecord struct {
	SourceID            string       `gorm:"type:text;primaryKey" json:"source_id"`
	Enabled             bool         `gorm:"default:true" json:"enabled"`
	ConsecutiveFailures int          `gorm:"default:0" json:"consecutive_failures"`
	LastStatus          Availability `gorm:"type:text;default:available" json:"last_status"`
	LastErrorClass      ErrorClass   `gorm:"type:text" json:"last_error_class,omitempty"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// TableName returns the database table name for SourceRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SourceRecord) TableName() string {
	return "sources"
}
