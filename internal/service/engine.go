package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/jobtide/internal/dedupe"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/health"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/rate"
	"github.com/timmy/jobtide/internal/source"
)

// EngineConfig holds collection run settings.
type EngineConfig struct {
	DefaultDeadline  time.Duration // run deadline when the query has none
	PerSourceTimeout time.Duration // optional per-task ceiling, never past the run deadline
	PerSourceLimit   int           // default result cap when the query has none
}

// Engine is the collection orchestrator. It holds no cross-run state
// itself; everything that outlives a run lives in the collaborators, so
// overlapping Collect calls are safe.
type Engine struct {
	sources  *source.Registry
	governor *rate.Governor
	health   *health.Registry
	cache    *dedupe.Cache
	retry    RetryPolicy
	cfg      *EngineConfig
	logger   *logger.Logger
}

// NewEngine creates the orchestrator over its collaborators.
// Parameters:
//   - sources: source catalog.
//   - governor: rate governor.
//   - healthReg: health registry.
//   - cache: deduplication cache.
//   - retry: backoff policy for transient fetch failures.
//   - cfg: engine configuration; nil uses zero values.
//   - log: logger instance.
// Returns:
//   - *Engine: initialized engine.
func NewEngine(
	sources *source.Registry,
	governor *rate.Governor,
	healthReg *health.Registry,
	cache *dedupe.Cache,
	retry RetryPolicy,
	cfg *EngineConfig,
	log *logger.Logger,
) *Engine {
	if cfg == nil {
		cfg = &EngineConfig{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{
		sources:  sources,
		governor: governor,
		health:   healthReg,
		cache:    cache,
		retry:    retry,
		cfg:      cfg,
		logger:   log,
	}
}

// log returns a logger from context if available, otherwise the engine's.
func (e *Engine) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

// taskResult is one per-source task's terminal outcome plus its records.
type taskResult struct {
	outcome domain.SourceOutcome
	records []domain.ListingRecord
}

// Collect runs one collection: eligible sources fan out to bounded
// concurrent fetches, outcomes feed the health registry, the union of
// results passes through the deduplication cache, and a report covering
// every eligible source comes back. No per-source error escapes; the
// only failure modes are a structurally invalid query and an
// unreachable dedupe store.
// Parameters:
//   - ctx: caller context; cancellation stops the run cooperatively.
//   - query: immutable collection query.
// Returns:
//   - *domain.CollectionReport: merged, deduplicated result set with
//     per-source outcomes.
//   - error: *domain.ValidationError or domain.ErrCacheUnavailable.
func (e *Engine) Collect(ctx context.Context, query domain.Query) (*domain.CollectionReport, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = logger.SetRunID(ctx, runID)
	started := time.Now()

	deadline := query.Deadline
	if deadline.IsZero() && e.cfg.DefaultDeadline > 0 {
		deadline = started.Add(e.cfg.DefaultDeadline)
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	eligible := e.sources.ListEligible(query)
	e.log(ctx).WithFields(logger.Fields{
		"eligible": len(eligible),
		"keywords": query.Keywords,
	}).Info("Starting collection run")

	outcomes := make([]domain.SourceOutcome, 0, len(eligible))
	results := make(chan taskResult, len(eligible))
	var wg sync.WaitGroup

	for _, desc := range eligible {
		if !e.health.IsEligible(desc.ID) {
			outcomes = append(outcomes, domain.SourceOutcome{
				SourceID: desc.ID,
				State:    domain.DispatchSkipped,
				Reason:   "source is unavailable; awaiting health probe recovery",
			})
			continue
		}

		wg.Add(1)
		go func(desc source.Descriptor) {
			defer wg.Done()
			results <- e.runTask(runCtx, desc, query)
		}(desc)
	}

	wg.Wait()
	close(results)

	// Merge in completion order; only the deduplicated set is
	// deterministic, never the ordering.
	var union []domain.ListingRecord
	for res := range results {
		union = append(union, res.records...)
		outcomes = append(outcomes, res.outcome)
	}

	// Assembly proceeds with whatever completed even when the deadline
	// elapsed, so the cache pass runs on a context that survives it.
	deduped, err := e.cache.FilterNew(context.WithoutCancel(runCtx), union)
	if err != nil {
		e.log(ctx).WithError(err).Error("Collection run aborted: dedupe store unreachable")
		return nil, err
	}

	report := &domain.CollectionReport{
		RunID:        runID,
		Records:      deduped,
		Outcomes:     outcomes,
		RawCount:     len(union),
		DedupedCount: len(deduped),
		StartedAt:    started,
		Elapsed:      time.Since(started),
	}

	for _, o := range report.Outcomes {
		logger.With(logger.Fields{
			logger.FieldSource:  o.SourceID,
			logger.FieldOutcome: string(o.State),
			logger.FieldCount:   o.Records,
		}).Info(ctx, "Source outcome: %s", nonEmpty(o.Reason, "ok"))
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: report.Elapsed.Milliseconds(),
		"raw":                  report.RawCount,
		"deduped":              report.DedupedCount,
	}).Info(ctx, "Collection run completed")

	return report, nil
}

// runTask executes the per-source state machine for one dispatch:
// pending -> dispatched -> {succeeded | failed | timed-out}.
func (e *Engine) runTask(runCtx context.Context, desc source.Descriptor, query domain.Query) taskResult {
	start := time.Now()
	srcCtx := logger.SetSource(runCtx, desc.ID)

	taskCtx := srcCtx
	if e.cfg.PerSourceTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(srcCtx, e.cfg.PerSourceTimeout)
		defer cancel()
	}

	permit, err := e.governor.Acquire(taskCtx, desc.ID)
	if err != nil {
		// Admission never happened, so no attempt reaches the health
		// registry: health reflects dispatched attempts only.
		return taskResult{outcome: domain.SourceOutcome{
			SourceID: desc.ID,
			State:    e.terminalState(taskCtx, err),
			Reason:   "no rate permit before the deadline",
			Elapsed:  time.Since(start),
		}}
	}

	subQuery := e.capabilitySubset(desc.Adapter.Capabilities(), query)
	var records []domain.ListingRecord
	err = e.retry.Do(taskCtx, func(ctx context.Context) error {
		var fetchErr error
		records, fetchErr = desc.Adapter.Fetch(ctx, subQuery)
		return fetchErr
	})
	permit.Release()

	// Health persistence must not be lost to a deadline that elapsed
	// mid-fetch.
	e.health.Record(context.WithoutCancel(srcCtx), desc.ID, err)

	if err != nil {
		class := domain.Classify(err)
		var rateErr *domain.RateLimitError
		if errors.As(err, &rateErr) {
			e.governor.Penalize(desc.ID, rateErr.RetryAfter)
		}
		return taskResult{outcome: domain.SourceOutcome{
			SourceID:   desc.ID,
			State:      e.terminalState(taskCtx, err),
			Reason:     err.Error(),
			ErrorClass: class,
			Elapsed:    time.Since(start),
		}}
	}

	if subQuery.PerSourceLimit > 0 && len(records) > subQuery.PerSourceLimit {
		records = records[:subQuery.PerSourceLimit]
	}

	return taskResult{
		outcome: domain.SourceOutcome{
			SourceID: desc.ID,
			State:    domain.DispatchSucceeded,
			Records:  len(records),
			Elapsed:  time.Since(start),
		},
		records: records,
	}
}

// terminalState distinguishes a timed-out task from an ordinary failure.
func (e *Engine) terminalState(taskCtx context.Context, err error) domain.DispatchState {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return domain.DispatchTimedOut
	}
	return domain.DispatchFailed
}

// capabilitySubset reduces the query to the filters the adapter
// declares support for and applies the default per-source cap.
func (e *Engine) capabilitySubset(caps source.Capabilities, query domain.Query) domain.Query {
	sub := query
	if !caps.Location {
		sub.Location = ""
	}
	if !caps.Experience {
		sub.Experience = ""
	}
	if sub.PerSourceLimit == 0 {
		sub.PerSourceLimit = e.cfg.PerSourceLimit
	}
	return sub
}

// RegisterSource adds or replaces a source and binds its rate class.
// Parameters:
//   - desc: descriptor to register.
// Returns:
//   - error: non-nil when the descriptor is invalid.
func (e *Engine) RegisterSource(desc source.Descriptor) error {
	if err := e.sources.Register(desc); err != nil {
		return err
	}
	if desc.RateClass != "" {
		e.governor.AssignClass(orID(desc), desc.RateClass)
	}
	return nil
}

func orID(desc source.Descriptor) string {
	if desc.ID != "" {
		return desc.ID
	}
	return desc.Adapter.ID()
}

// SetSourceEnabled flips the explicit enabled override for a source.
func (e *Engine) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	return e.sources.SetEnabled(ctx, id, enabled)
}

// Sources lists every registered source descriptor.
func (e *Engine) Sources() []source.Descriptor {
	return e.sources.List()
}

// HealthSnapshot returns the current health of every tracked source.
func (e *Engine) HealthSnapshot() map[string]domain.HealthStatus {
	return e.health.Snapshot()
}

// MarkApplied flags a fingerprint as acted upon by an external caller.
func (e *Engine) MarkApplied(ctx context.Context, fingerprint string) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint must not be empty")
	}
	return e.cache.MarkApplied(ctx, fingerprint)
}

// IsApplied reports the applied flag for a fingerprint.
func (e *Engine) IsApplied(ctx context.Context, fingerprint string) (bool, error) {
	return e.cache.IsApplied(ctx, fingerprint)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
