package health

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/logger"
)

// Persister stores health rows durably. Implementations must replace
// the whole row per source; partial field updates would race.
type Persister interface {
	SaveHealth(ctx context.Context, sourceID string, status domain.HealthStatus) error
}

// sourceState carries one source's counters behind its own mutex so
// updates for a given source are strictly serialized without blocking
// updates for other sources.
type sourceState struct {
	mu     sync.Mutex
	status domain.HealthStatus
}

// Registry tracks per-source health and drives inclusion/exclusion.
// Outcomes are classified into the error taxonomy and folded into an
// explicit availability state machine (see status.go).
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]*sourceState
	thresholds Thresholds
	persister  Persister
	logger     *logger.Logger
}

// NewRegistry creates a health registry.
// Parameters:
//   - thresholds: FSM transition thresholds; zero values use defaults.
//   - persister: optional durable sink for health rows; nil keeps
//     health in-memory only.
//   - log: logger instance.
// Returns:
//   - *Registry: initialized registry.
func NewRegistry(thresholds Thresholds, persister Persister, log *logger.Logger) *Registry {
	if thresholds.DegradedAfter <= 0 {
		thresholds.DegradedAfter = DefaultDegradedAfter
	}
	if thresholds.UnavailableAfter <= 0 {
		thresholds.UnavailableAfter = DefaultUnavailableAfter
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Registry{
		sources:    make(map[string]*sourceState),
		thresholds: thresholds,
		persister:  persister,
		logger:     log,
	}
}

// state returns the per-source slot, creating it on first sight.
func (r *Registry) state(sourceID string) *sourceState {
	r.mu.RLock()
	st, ok := r.sources[sourceID]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok = r.sources[sourceID]; ok {
		return st
	}
	st = &sourceState{status: domain.HealthStatus{Availability: domain.AvailabilityAvailable}}
	r.sources[sourceID] = st
	return st
}

// Record folds one dispatched-attempt outcome into the source's health.
// Parameters:
//   - ctx: context for the persistence write.
//   - sourceID: source the attempt was dispatched to.
//   - err: attempt error; nil means success.
// Returns:
//   - domain.HealthStatus: the status after the transition.
func (r *Registry) Record(ctx context.Context, sourceID string, err error) domain.HealthStatus {
	class := domain.Classify(err)
	st := r.state(sourceID)

	st.mu.Lock()
	now := time.Now()
	prev := st.status.Availability

	if class == domain.ErrorClassNone {
		st.status.ConsecutiveFailures = 0
		st.status.LastSuccessAt = &now
		st.status.LastErrorClass = domain.ErrorClassNone
	} else {
		st.status.ConsecutiveFailures++
		st.status.LastErrorClass = class
	}
	st.status.LastAttemptAt = &now
	st.status.Availability = next(prev, st.status.ConsecutiveFailures, class, r.thresholds)
	snapshot := st.status
	st.mu.Unlock()

	if snapshot.Availability != prev {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldSource: sourceID,
			"from":             string(prev),
			"to":               string(snapshot.Availability),
			"failures":         snapshot.ConsecutiveFailures,
		}).Info("Source availability changed")
	}

	r.persist(ctx, sourceID, snapshot)
	return snapshot
}

// persist writes the whole health row; failures are logged, never fatal.
func (r *Registry) persist(ctx context.Context, sourceID string, status domain.HealthStatus) {
	if r.persister == nil {
		return
	}
	if err := r.persister.SaveHealth(ctx, sourceID, status); err != nil {
		r.logger.WithField(logger.FieldSource, sourceID).WithError(err).
			Warn("Failed to persist health row")
	}
}

// IsEligible reports whether a source may receive full fetches.
// Available and degraded sources are eligible; unavailable sources are
// probed via health-check-only calls instead.
// Parameters:
//   - sourceID: source to check.
// Returns:
//   - bool: true when the source may be dispatched to.
func (r *Registry) IsEligible(sourceID string) bool {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status.Availability != domain.AvailabilityUnavailable
}

// Status returns the current health of one source.
func (r *Registry) Status(sourceID string) domain.HealthStatus {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

// Snapshot returns the health of every tracked source.
// Parameters: none.
// Returns:
//   - map[string]domain.HealthStatus: copy of current health per source.
func (r *Registry) Snapshot() map[string]domain.HealthStatus {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[string]domain.HealthStatus, len(ids))
	for _, id := range ids {
		out[id] = r.Status(id)
	}
	return out
}

// Unavailable lists the sources currently excluded from full fetches.
func (r *Registry) Unavailable() []string {
	var out []string
	for id, status := range r.Snapshot() {
		if status.Availability == domain.AvailabilityUnavailable {
			out = append(out, id)
		}
	}
	return out
}

// Rehydrate seeds the registry from persisted rows at startup so health
// survives restarts. Unknown fields default sanely.
// Parameters:
//   - rows: source rows read from the durable store.
func (r *Registry) Rehydrate(rows []domain.SourceRecord) {
	for _, row := range rows {
		availability := row.LastStatus
		switch availability {
		case domain.AvailabilityAvailable, domain.AvailabilityDegraded, domain.AvailabilityUnavailable:
		default:
			availability = domain.AvailabilityAvailable
		}
		st := r.state(row.SourceID)
		st.mu.Lock()
		st.status = domain.HealthStatus{
			Availability:        availability,
			ConsecutiveFailures: row.ConsecutiveFailures,
			LastSuccessAt:       row.LastSuccessAt,
			LastErrorClass:      row.LastErrorClass,
		}
		st.mu.Unlock()
	}
}
