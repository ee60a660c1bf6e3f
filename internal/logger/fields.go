package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the collection run ID
	FieldRunID = "run_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the listing source identifier
	FieldSource = "source"

	// FieldFingerprint is the listing fingerprint being acted on
	FieldFingerprint = "fingerprint"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldOutcome is the per-source dispatch outcome
	FieldOutcome = "outcome"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is the response body size in bytes
	FieldSize = "size"
)
