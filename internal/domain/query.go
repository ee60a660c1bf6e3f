package domain

import (
	"strings"
	"time"
)

// Query describes one collection request. Immutable for the run: the
// caller builds it once and every component reads it as-is.
type Query struct {
	Keywords       []string  `json:"keywords"`
	Location       string    `json:"location,omitempty"`
	Experience     string    `json:"experience,omitempty"`
	PerSourceLimit int       `json:"per_source_limit,omitempty"`
	Deadline       time.Time `json:"deadline,omitempty"`
}

// Validate rejects structurally invalid queries before any dispatch.
// Parameters: none.
// Returns:
//   - error: *ValidationError when the query cannot be dispatched, nil otherwise.
func (q Query) Validate() error {
	hasKeyword := false
	for _, kw := range q.Keywords {
		if strings.TrimSpace(kw) != "" {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return &ValidationError{Msg: "keyword set must not be empty"}
	}
	if q.PerSourceLimit < 0 {
		return &ValidationError{Msg: "per-source limit must not be negative"}
	}
	if !q.Deadline.IsZero() && q.Deadline.Before(time.Now()) {
		return &ValidationError{Msg: "deadline is already in the past"}
	}
	return nil
}
