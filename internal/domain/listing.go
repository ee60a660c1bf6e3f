package domain

import "time"

// CompensationRange is an optional salary band attached to a listing.
// Values are in the source's native currency; Period is e.g. "year" or "hour".
type CompensationRange struct {
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Period   string  `json:"period,omitempty"`
}

// ListingRecord is the canonical job posting produced by a source adapter.
// Immutable once created; adapters translate their native response shape
// into this record and nothing downstream mutates it.
type ListingRecord struct {
	SourceID     string             `json:"source_id"`
	ExternalID   string             `json:"external_id"`
	Title        string             `json:"title"`
	Organization string             `json:"organization"`
	Location     string             `json:"location"`
	Body         string             `json:"body,omitempty"`
	URL          string             `json:"url"`
	Compensation *CompensationRange `json:"compensation,omitempty"`
	DiscoveredAt time.Time          `json:"discovered_at"`
}
