package domain

import "time"

// DispatchState is the per-source, per-run state machine. Terminal for
// the run; the next run starts every source fresh at pending.
// Values include DispatchPending, DispatchDispatched, DispatchSucceeded,
// DispatchFailed, DispatchTimedOut, and DispatchSkipped.
type DispatchState string

const (
	DispatchPending    DispatchState = "pending"
	DispatchDispatched DispatchState = "dispatched"
	DispatchSucceeded  DispatchState = "succeeded"
	DispatchFailed     DispatchState = "failed"
	DispatchTimedOut   DispatchState = "timed_out"
	DispatchSkipped    DispatchState = "skipped"
)

// SourceOutcome records how one eligible source fared in a run. Every
// eligible source appears in the report with an explicit outcome and a
// human-readable reason for non-success, so partial results are never
// presented as complete silently.
type SourceOutcome struct {
	SourceID   string        `json:"source_id"`
	State      DispatchState `json:"state"`
	Reason     string        `json:"reason,omitempty"`
	ErrorClass ErrorClass    `json:"error_class,omitempty"`
	Records    int           `json:"records"`
	Elapsed    time.Duration `json:"elapsed"`
}

// CollectionReport is the single output of a run. Owned by the caller
// after Collect returns.
type CollectionReport struct {
	RunID        string          `json:"run_id"`
	Records      []ListingRecord `json:"records"`
	Outcomes     []SourceOutcome `json:"outcomes"`
	RawCount     int             `json:"raw_count"`
	DedupedCount int             `json:"deduped_count"`
	StartedAt    time.Time       `json:"started_at"`
	Elapsed      time.Duration   `json:"elapsed"`
}
