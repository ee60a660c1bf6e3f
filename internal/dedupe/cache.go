package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/logger"
)

// Store is the durable backend for dedupe entries. Implementations must
// provide single-writer-per-fingerprint semantics: concurrent inserts of
// the same fingerprint converge to one row, with exactly one caller told
// it inserted. SetApplied returns domain.ErrFingerprintUnknown when no
// row matches the fingerprint.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*domain.DedupeEntry, error)
	Insert(ctx context.Context, entry *domain.DedupeEntry) (inserted bool, err error)
	ListSince(ctx context.Context, since time.Time) ([]domain.DedupeEntry, error)
	SetApplied(ctx context.Context, fingerprint string, applied bool) error
}

// Prober is an optional fast path in front of the Store for exact
// fingerprint existence checks and the applied flag. A Prober failure
// degrades to Store-only operation; the Store stays authoritative.
type Prober interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Remember(ctx context.Context, fingerprint string) error
	MarkApplied(ctx context.Context, fingerprint string) error
}

// Config holds the fuzzy-match knobs. The threshold and window have no
// derivation beyond operational tuning, so both stay configurable.
type Config struct {
	FuzzyThreshold float64       // similarity ratio a fuzzy pair must exceed
	FuzzyWindow    time.Duration // max discovery-time delta for a fuzzy pair
}

// DefaultConfig returns the shipped dedupe defaults.
// Parameters: none.
// Returns:
//   - *Config: 0.85 threshold, 30 day window.
func DefaultConfig() *Config {
	return &Config{
		FuzzyThreshold: 0.85,
		FuzzyWindow:    30 * 24 * time.Hour,
	}
}

// Cache is the two-tier deduplication component. Tier 1 is an exact
// match on the normalized-URL fingerprint and is authoritative. Tier 2
// is a fuzzy match on normalized title+organization, accepted only when
// similarity exceeds the threshold and discovery timestamps fall within
// the window. The raw store is never exposed.
type Cache struct {
	store  Store
	prober Prober
	cfg    *Config
	logger *logger.Logger
}

// NewCache creates a Cache over the given store.
// Parameters:
//   - store: durable dedupe entry backend (required).
//   - prober: optional exact-match fast path; nil disables it.
//   - cfg: fuzzy-match configuration; nil uses DefaultConfig.
//   - log: logger instance.
// Returns:
//   - *Cache: initialized cache.
func NewCache(store Store, prober Prober, cfg *Config, log *logger.Logger) *Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Cache{
		store:  store,
		prober: prober,
		cfg:    cfg,
		logger: log,
	}
}

func (c *Cache) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

// fuzzyCandidate pairs a normalized basis with its discovery time.
type fuzzyCandidate struct {
	normTitle string
	normOrg   string
	seenAt    time.Time
}

func (f fuzzyCandidate) basis() string {
	return f.normTitle + " " + f.normOrg
}

// FilterNew returns the subset of records not seen before and persists
// fingerprints for every newly admitted record. A store failure is
// fatal: dedup correctness cannot be guaranteed without the durable
// store, so the error wraps domain.ErrCacheUnavailable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: batch of listing records from one run.
// Returns:
//   - []domain.ListingRecord: the new subset, batch order preserved.
//   - error: non-nil only when the durable store is unreachable.
func (c *Cache) FilterNew(ctx context.Context, records []domain.ListingRecord) ([]domain.ListingRecord, error) {
	if len(records) == 0 {
		return []domain.ListingRecord{}, nil
	}

	// One candidate pull covers the whole batch. The window is anchored
	// at the oldest discovery time in the batch so historical entries
	// within reach of any record are loaded.
	oldest := records[0].DiscoveredAt
	for _, r := range records[1:] {
		if r.DiscoveredAt.Before(oldest) {
			oldest = r.DiscoveredAt
		}
	}
	historical, err := c.store.ListSince(ctx, oldest.Add(-c.cfg.FuzzyWindow))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	candidates := make([]fuzzyCandidate, 0, len(historical)+len(records))
	for _, e := range historical {
		candidates = append(candidates, fuzzyCandidate{
			normTitle: e.NormTitle,
			normOrg:   e.NormOrg,
			seenAt:    e.FirstSeenAt,
		})
	}

	fresh := make([]domain.ListingRecord, 0, len(records))
	seenInBatch := make(map[string]bool, len(records))

	for _, rec := range records {
		fp := Fingerprint(rec.URL)

		if seenInBatch[fp] {
			continue
		}

		exists, err := c.exactSeen(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
		}
		if exists {
			seenInBatch[fp] = true
			continue
		}

		cand := fuzzyCandidate{
			normTitle: NormalizeText(rec.Title),
			normOrg:   NormalizeText(rec.Organization),
			seenAt:    rec.DiscoveredAt,
		}
		if c.fuzzyMatch(cand, candidates) {
			seenInBatch[fp] = true
			continue
		}

		entry := &domain.DedupeEntry{
			Fingerprint: fp,
			SourceID:    rec.SourceID,
			NormTitle:   cand.normTitle,
			NormOrg:     cand.normOrg,
			FirstSeenAt: rec.DiscoveredAt,
		}
		inserted, err := c.store.Insert(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
		}
		if !inserted {
			// Lost a concurrent insert race for this fingerprint. The
			// winner owns the entry; this occurrence is a duplicate.
			seenInBatch[fp] = true
			continue
		}

		c.remember(ctx, fp)
		seenInBatch[fp] = true
		candidates = append(candidates, cand)
		fresh = append(fresh, rec)
	}

	return fresh, nil
}

// fuzzyMatch reports whether cand duplicates any accepted candidate:
// similarity above threshold and discovery times inside the window.
func (c *Cache) fuzzyMatch(cand fuzzyCandidate, against []fuzzyCandidate) bool {
	for _, other := range against {
		delta := cand.seenAt.Sub(other.seenAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > c.cfg.FuzzyWindow {
			continue
		}
		if Similarity(cand.basis(), other.basis()) >= c.cfg.FuzzyThreshold {
			return true
		}
	}
	return false
}

// exactSeen consults the prober first and falls back to the store.
func (c *Cache) exactSeen(ctx context.Context, fp string) (bool, error) {
	if c.prober != nil {
		seen, err := c.prober.Seen(ctx, fp)
		if err == nil {
			if seen {
				return true, nil
			}
			// A prober miss is not authoritative: the store may hold
			// entries written before the prober came up.
		} else {
			c.log(ctx).WithError(err).Warn("Fingerprint fast path unavailable, falling back to store")
		}
	}

	entry, err := c.store.Get(ctx, fp)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// remember populates the prober after a successful insert. Failures are
// logged and ignored; the store already holds the entry.
func (c *Cache) remember(ctx context.Context, fp string) {
	if c.prober == nil {
		return
	}
	if err := c.prober.Remember(ctx, fp); err != nil {
		c.log(ctx).WithError(err).Debug("Failed to populate fingerprint fast path")
	}
}

// IsApplied reports whether an external caller has flagged the
// fingerprint as acted upon. The engine stores the flag without
// interpreting it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: exact-match fingerprint.
// Returns:
//   - bool: the applied flag; false when the fingerprint is unknown.
//   - error: non-nil if the store lookup fails.
func (c *Cache) IsApplied(ctx context.Context, fingerprint string) (bool, error) {
	entry, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	if entry == nil {
		return false, nil
	}
	return entry.Applied, nil
}

// MarkApplied sets the applied flag for a fingerprint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: exact-match fingerprint.
// Returns:
//   - error: domain.ErrFingerprintUnknown for a fingerprint the cache
//     has never seen, domain.ErrCacheUnavailable if the store update
//     fails.
func (c *Cache) MarkApplied(ctx context.Context, fingerprint string) error {
	if err := c.store.SetApplied(ctx, fingerprint, true); err != nil {
		if errors.Is(err, domain.ErrFingerprintUnknown) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	if c.prober != nil {
		if err := c.prober.MarkApplied(ctx, fingerprint); err != nil {
			c.log(ctx).WithError(err).Debug("Failed to mark applied on fast path")
		}
	}
	return nil
}
