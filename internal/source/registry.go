package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/logger"
)

// Descriptor is one registry entry: a stable id bound to an adapter,
// its rate class, and the explicit enabled flag. The flag is an
// operator override and beats health-driven exclusion in both
// directions: a disabled healthy source is skipped, and enabling a
// source does not bypass health checks.
type Descriptor struct {
	ID        string
	Adapter   Adapter
	RateClass string
	Enabled   bool
}

// EnabledPersister stores the enabled flag durably so overrides survive
// restarts.
type EnabledPersister interface {
	SaveEnabled(ctx context.Context, sourceID string, enabled bool) error
}

// Registry is the synchronized catalog of known adapters. Pure state:
// no network calls, no concurrency logic beyond its own lock.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Descriptor
	persister EnabledPersister
	logger    *logger.Logger
}

// NewRegistry creates an empty source registry.
// Parameters:
//   - persister: optional durable sink for enabled flags; nil keeps
//     overrides in-memory only.
//   - log: logger instance.
// Returns:
//   - *Registry: initialized registry.
func NewRegistry(persister EnabledPersister, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Registry{
		entries:   make(map[string]*Descriptor),
		persister: persister,
		logger:    log,
	}
}

// Register adds or replaces a descriptor keyed by its adapter's ID.
// Parameters:
//   - desc: descriptor to register; its ID is taken from the adapter
//     when empty.
// Returns:
//   - error: non-nil when the descriptor carries no adapter.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Adapter == nil {
		return fmt.Errorf("descriptor for %q has no adapter", desc.ID)
	}
	if desc.ID == "" {
		desc.ID = desc.Adapter.ID()
	}
	if desc.RateClass == "" {
		desc.RateClass = desc.Adapter.Capabilities().RateClass
	}

	r.mu.Lock()
	r.entries[desc.ID] = &desc
	r.mu.Unlock()

	r.logger.WithFields(logger.Fields{
		logger.FieldSource: desc.ID,
		"rate_class":       desc.RateClass,
		"enabled":          desc.Enabled,
	}).Info("Registered source")
	return nil
}

// SetEnabled flips the explicit operator override for a source.
// Parameters:
//   - ctx: context for the persistence write.
//   - id: source identifier.
//   - enabled: new flag value.
// Returns:
//   - error: non-nil when the source is unknown.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		entry.Enabled = enabled
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown source: %s", id)
	}

	if r.persister != nil {
		if err := r.persister.SaveEnabled(ctx, id, enabled); err != nil {
			r.logger.WithField(logger.FieldSource, id).WithError(err).
				Warn("Failed to persist enabled flag")
		}
	}
	return nil
}

// Get returns the descriptor for a source.
// Parameters:
//   - id: source identifier.
// Returns:
//   - Descriptor: copy of the entry.
//   - bool: false when the source is unknown.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return *entry, true
}

// List returns every registered descriptor, sorted by ID.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, *entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEligible filters the catalog down to the sources a query may be
// dispatched to: enabled, and capable of every filter the query carries.
// Parameters:
//   - query: collection query.
// Returns:
//   - []Descriptor: eligible descriptors, sorted by ID.
func (r *Registry) ListEligible(query domain.Query) []Descriptor {
	var out []Descriptor
	for _, desc := range r.List() {
		if !desc.Enabled {
			continue
		}
		caps := desc.Adapter.Capabilities()
		if query.Location != "" && !caps.Location {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// RehydrateEnabled applies persisted enabled flags to registered
// sources at startup. Rows for unregistered sources are ignored.
// Parameters:
//   - rows: source rows read from the durable store.
func (r *Registry) RehydrateEnabled(rows []domain.SourceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		if entry, ok := r.entries[row.SourceID]; ok {
			entry.Enabled = row.Enabled
		}
	}
}
