package source

import (
	"context"

	"github.com/timmy/jobtide/internal/domain"
)

// Latency classes advertised by adapters. Informational: callers may
// use them to pick per-source timeouts.
const (
	LatencyFast = "fast" // versioned HTTP APIs
	LatencySlow = "slow" // browser-automation backed sources
)

// Capabilities declares what an adapter supports. The orchestrator
// strips unsupported filters from the query before dispatch so every
// adapter only ever sees parameters it understands.
type Capabilities struct {
	Location     bool   // supports a location filter
	Experience   bool   // supports an experience filter
	LatencyClass string // LatencyFast or LatencySlow
	RateClass    string // rate class hint for the governor
}

// Adapter is the common contract every source implements, whether it
// fronts a REST API or a browser-automation pool. Callers treat all
// implementations identically.
type Adapter interface {
	// ID returns the stable identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	ID() string

	// Fetch retrieves listings matching the query. The query passed in
	// has already been reduced to this adapter's capability set.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - query: capability-compatible collection query.
	// Returns:
	//   - []domain.ListingRecord: canonical listings.
	//   - error: nil, or a taxonomy error (AuthError, RateLimitError,
	//     StructuralError) or plain transient error.
	Fetch(ctx context.Context, query domain.Query) ([]domain.ListingRecord, error)

	// HealthCheck probes the source without a full fetch. Used for
	// half-open probing of unavailable sources.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - error: nil when the source answers, classified error otherwise.
	HealthCheck(ctx context.Context) error

	// Capabilities returns the adapter's static capability set.
	// Parameters: none.
	// Returns:
	//   - Capabilities: supported filters and latency/rate hints.
	Capabilities() Capabilities
}
