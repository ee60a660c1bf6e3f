package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/timmy/jobtide/internal/dedupe"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/health"
	"github.com/timmy/jobtide/internal/rate"
	"github.com/timmy/jobtide/internal/source"
)

// memDedupeStore is an in-memory dedupe.Store for engine tests.
type memDedupeStore struct {
	mu      sync.Mutex
	entries map[string]*domain.DedupeEntry
}

func newMemDedupeStore() *memDedupeStore {
	return &memDedupeStore{entries: make(map[string]*domain.DedupeEntry)}
}

func (s *memDedupeStore) Get(_ context.Context, fp string) (*domain.DedupeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fp]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memDedupeStore) Insert(_ context.Context, entry *domain.DedupeEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.Fingerprint]; exists {
		return false, nil
	}
	cp := *entry
	s.entries[entry.Fingerprint] = &cp
	return true, nil
}

func (s *memDedupeStore) ListSince(_ context.Context, since time.Time) ([]domain.DedupeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DedupeEntry
	for _, e := range s.entries {
		if !e.FirstSeenAt.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memDedupeStore) SetApplied(_ context.Context, fp string, applied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fp]
	if !ok {
		return domain.ErrFingerprintUnknown
	}
	e.Applied = applied
	return nil
}

// fakeAdapter is a scriptable source adapter.
type fakeAdapter struct {
	id      string
	latency time.Duration
	records []domain.ListingRecord
	errs    []error // consumed per fetch; nil entries mean success
	mu      sync.Mutex
	fetches int
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Capabilities() source.Capabilities {
	return source.Capabilities{Location: true, Experience: true, LatencyClass: source.LatencyFast}
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (f *fakeAdapter) Fetch(ctx context.Context, _ domain.Query) ([]domain.ListingRecord, error) {
	f.mu.Lock()
	attempt := f.fetches
	f.fetches++
	f.mu.Unlock()

	if f.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.latency):
		}
	}
	if attempt < len(f.errs) && f.errs[attempt] != nil {
		return nil, f.errs[attempt]
	}
	return f.records, nil
}

func (f *fakeAdapter) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func listings(sourceID string, titles, orgs []string, host string, seen time.Time) []domain.ListingRecord {
	out := make([]domain.ListingRecord, len(titles))
	for i := range titles {
		out[i] = domain.ListingRecord{
			SourceID:     sourceID,
			ExternalID:   titles[i],
			Title:        titles[i],
			Organization: orgs[i],
			URL:          "https://" + host + "/jobs/" + string(rune('a'+i)) + "-posting",
			DiscoveredAt: seen,
		}
	}
	return out
}

var (
	fastTitles = []string{
		"Backend Engineer", "Frontend Developer", "Data Scientist",
		"Site Reliability Engineer", "Product Manager", "QA Analyst",
		"Mobile Developer", "Security Engineer", "Machine Learning Engineer",
		"Database Administrator",
	}
	fastOrgs = []string{
		"Acme", "Globex", "Initech", "Umbrella", "Stark",
		"Wayne", "Hooli", "Vandelay", "Dunder", "Cyberdyne",
	}
	// The first three slow listings fuzzy-overlap the first three fast
	// ones: same title and organization, different URL.
	slowTitles = []string{
		"Backend Engineer", "Frontend Developer", "Data Scientist",
		"Cloud Architect", "DevOps Lead", "Compiler Engineer",
		"Support Specialist", "Technical Writer",
	}
	slowOrgs = []string{
		"Acme", "Globex", "Initech",
		"Pixar", "Ollivanders", "Initrode", "Contoso", "Fabrikam",
	}
)

func newTestEngine(t *testing.T, adapters ...source.Adapter) *Engine {
	t.Helper()

	registry := source.NewRegistry(nil, nil)
	for _, a := range adapters {
		if err := registry.Register(source.Descriptor{Adapter: a, Enabled: true}); err != nil {
			t.Fatalf("register %s: %v", a.ID(), err)
		}
	}

	governor := rate.NewGovernor(&rate.Config{
		GlobalConcurrency: 4,
		Classes:           map[string]rate.ClassConfig{"default": {Capacity: 100, RefillPerSec: 1000}},
		DefaultClass:      "default",
	})
	healthReg := health.NewRegistry(health.DefaultThresholds(), nil, nil)
	cache := dedupe.NewCache(newMemDedupeStore(), nil, nil, nil)

	return NewEngine(registry, governor, healthReg, cache,
		RetryPolicy{MaxAttempts: 1}, &EngineConfig{}, nil)
}

func outcomeFor(t *testing.T, report *domain.CollectionReport, sourceID string) domain.SourceOutcome {
	t.Helper()
	for _, o := range report.Outcomes {
		if o.SourceID == sourceID {
			return o
		}
	}
	t.Fatalf("no outcome for source %s in %+v", sourceID, report.Outcomes)
	return domain.SourceOutcome{}
}

// ── scenarios ──

// Fast answers 10 records in 50ms; Slow would answer 8 in 4s but the
// run deadline is 2s. Fast succeeds, Slow times out, nothing of Slow's
// reaches the result set.
func TestCollectScenarioShortDeadline(t *testing.T) {
	now := time.Now()
	fast := &fakeAdapter{id: "fast", latency: 50 * time.Millisecond,
		records: listings("fast", fastTitles, fastOrgs, "fast.example.com", now)}
	slow := &fakeAdapter{id: "slow", latency: 4 * time.Second,
		records: listings("slow", slowTitles, slowOrgs, "slow.example.com", now)}

	engine := newTestEngine(t, fast, slow)

	started := time.Now()
	report, err := engine.Collect(context.Background(), domain.Query{
		Keywords: []string{"engineer"},
		Deadline: started.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Errorf("collect overran the deadline: %v", elapsed)
	}

	fastOutcome := outcomeFor(t, report, "fast")
	if fastOutcome.State != domain.DispatchSucceeded || fastOutcome.Records != 10 {
		t.Errorf("fast outcome = %+v, want succeeded with 10 records", fastOutcome)
	}

	slowOutcome := outcomeFor(t, report, "slow")
	if slowOutcome.State != domain.DispatchTimedOut {
		t.Errorf("slow outcome = %+v, want timed_out", slowOutcome)
	}
	if slowOutcome.Reason == "" {
		t.Error("non-success outcome must carry a reason")
	}

	if report.DedupedCount != 10 {
		t.Errorf("final set size = %d, want 10", report.DedupedCount)
	}
}

// Same sources with a 10s deadline: both succeed and the three
// fuzzy-overlapping listings collapse, 10 + 8 - 3 = 15.
func TestCollectScenarioFullDeadline(t *testing.T) {
	now := time.Now()
	fast := &fakeAdapter{id: "fast", latency: 50 * time.Millisecond,
		records: listings("fast", fastTitles, fastOrgs, "fast.example.com", now)}
	slow := &fakeAdapter{id: "slow", latency: 2 * time.Second,
		records: listings("slow", slowTitles, slowOrgs, "slow.example.com", now.Add(-12*time.Hour))}

	engine := newTestEngine(t, fast, slow)

	report, err := engine.Collect(context.Background(), domain.Query{
		Keywords: []string{"engineer"},
		Deadline: time.Now().Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if got := outcomeFor(t, report, "slow").State; got != domain.DispatchSucceeded {
		t.Errorf("slow outcome = %q, want succeeded", got)
	}
	if report.RawCount != 18 {
		t.Errorf("raw count = %d, want 18", report.RawCount)
	}
	if report.DedupedCount != 15 {
		t.Errorf("final set size = %d, want 15 (10 + 8 - 3 overlaps)", report.DedupedCount)
	}
}

// ── validation and failure isolation ──

func TestCollectRejectsInvalidQuery(t *testing.T) {
	fast := &fakeAdapter{id: "fast"}
	engine := newTestEngine(t, fast)

	_, err := engine.Collect(context.Background(), domain.Query{})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fast.fetchCount() != 0 {
		t.Error("invalid query must be rejected before any dispatch")
	}
}

func TestCollectIsolatesFailures(t *testing.T) {
	now := time.Now()
	good := &fakeAdapter{id: "good",
		records: listings("good", fastTitles[:3], fastOrgs[:3], "good.example.com", now)}
	broken := &fakeAdapter{id: "broken", errs: []error{
		&domain.StructuralError{SourceID: "broken", Detail: "results field missing"},
	}}

	engine := newTestEngine(t, good, broken)

	report, err := engine.Collect(context.Background(), domain.Query{Keywords: []string{"go"}})
	if err != nil {
		t.Fatalf("a per-source failure must not escape Collect: %v", err)
	}

	if got := outcomeFor(t, report, "good").State; got != domain.DispatchSucceeded {
		t.Errorf("good outcome = %q, want succeeded", got)
	}
	brokenOutcome := outcomeFor(t, report, "broken")
	if brokenOutcome.State != domain.DispatchFailed {
		t.Errorf("broken outcome = %q, want failed", brokenOutcome.State)
	}
	if brokenOutcome.ErrorClass != domain.ErrorClassStructural {
		t.Errorf("broken error class = %q, want structural", brokenOutcome.ErrorClass)
	}
	if report.DedupedCount != 3 {
		t.Errorf("deduped count = %d, want 3", report.DedupedCount)
	}
}

func TestCollectSkipsUnavailableSource(t *testing.T) {
	now := time.Now()
	good := &fakeAdapter{id: "good",
		records: listings("good", fastTitles[:2], fastOrgs[:2], "good.example.com", now)}
	dead := &fakeAdapter{id: "dead", errs: []error{
		&domain.AuthError{SourceID: "dead", Err: errors.New("401")},
	}}

	engine := newTestEngine(t, good, dead)
	query := domain.Query{Keywords: []string{"go"}}

	// First run: the auth failure marks the source unavailable.
	report, err := engine.Collect(context.Background(), query)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	deadOutcome := outcomeFor(t, report, "dead")
	if deadOutcome.State != domain.DispatchFailed || deadOutcome.ErrorClass != domain.ErrorClassAuth {
		t.Errorf("dead outcome = %+v, want failed/authentication", deadOutcome)
	}
	if engine.HealthSnapshot()["dead"].Availability != domain.AvailabilityUnavailable {
		t.Fatal("auth failure must mark the source unavailable")
	}

	// Second run: the source is skipped, not fetched again.
	fetchesBefore := dead.fetchCount()
	report, err = engine.Collect(context.Background(), query)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := outcomeFor(t, report, "dead").State; got != domain.DispatchSkipped {
		t.Errorf("dead outcome on second run = %q, want skipped", got)
	}
	if dead.fetchCount() != fetchesBefore {
		t.Error("unavailable source must not receive full fetches")
	}
}

func TestCollectRetriesTransientWithinRun(t *testing.T) {
	now := time.Now()
	flaky := &fakeAdapter{id: "flaky",
		records: listings("flaky", fastTitles[:2], fastOrgs[:2], "flaky.example.com", now),
		errs:    []error{errors.New("connection reset"), nil}}

	engine := newTestEngine(t, flaky)
	engine.retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2}

	report, err := engine.Collect(context.Background(), domain.Query{Keywords: []string{"go"}})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := outcomeFor(t, report, "flaky").State; got != domain.DispatchSucceeded {
		t.Errorf("flaky outcome = %q, want succeeded after retry", got)
	}
	if flaky.fetchCount() != 2 {
		t.Errorf("fetch attempts = %d, want 2", flaky.fetchCount())
	}
	// The transient blip was recovered within the run; a success must
	// leave health clean.
	if engine.HealthSnapshot()["flaky"].ConsecutiveFailures != 0 {
		t.Error("recovered source must have a reset failure counter")
	}
}

func TestCollectRateLimitedDrainsBucket(t *testing.T) {
	limited := &fakeAdapter{id: "limited", errs: []error{
		&domain.RateLimitError{SourceID: "limited", RetryAfter: time.Hour, Err: errors.New("429")},
	}}

	engine := newTestEngine(t, limited)

	report, err := engine.Collect(context.Background(), domain.Query{Keywords: []string{"go"}})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	outcome := outcomeFor(t, report, "limited")
	if outcome.ErrorClass != domain.ErrorClassRateLimited {
		t.Errorf("error class = %q, want rate_limited", outcome.ErrorClass)
	}

	// The cooldown must keep the bucket empty: a fresh acquire blocks.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := engine.governor.Acquire(ctx, "limited"); err == nil {
		t.Error("expected drained bucket to block through the cooldown")
	}
}

func TestCollectPopulatedCacheAdmitsNothingTwice(t *testing.T) {
	now := time.Now()
	fast := &fakeAdapter{id: "fast",
		records: listings("fast", fastTitles[:4], fastOrgs[:4], "fast.example.com", now)}

	engine := newTestEngine(t, fast)
	query := domain.Query{Keywords: []string{"go"}}

	first, err := engine.Collect(context.Background(), query)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if first.DedupedCount != 4 {
		t.Fatalf("first run deduped = %d, want 4", first.DedupedCount)
	}

	second, err := engine.Collect(context.Background(), query)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if second.DedupedCount != 0 {
		t.Errorf("second run re-admitted %d previously seen records", second.DedupedCount)
	}
	if second.RawCount != 4 {
		t.Errorf("second run raw = %d, want 4", second.RawCount)
	}
}

// ── prober ──

func TestProberRecoversUnavailableSource(t *testing.T) {
	dead := &fakeAdapter{id: "dead", errs: []error{
		&domain.AuthError{SourceID: "dead", Err: errors.New("401")},
	}}
	engine := newTestEngine(t, dead)

	if _, err := engine.Collect(context.Background(), domain.Query{Keywords: []string{"go"}}); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if engine.health.IsEligible("dead") {
		t.Fatal("precondition: source should be unavailable")
	}

	prober := NewProber(engine.sources, engine.health, time.Second, nil)
	if got := prober.ProbeUnavailable(context.Background()); got != 1 {
		t.Fatalf("recovered = %d, want 1", got)
	}

	// Half-open: one good probe earns degraded, which is eligible again.
	status := engine.HealthSnapshot()["dead"]
	if status.Availability != domain.AvailabilityDegraded {
		t.Errorf("availability after probe = %q, want degraded", status.Availability)
	}
	if !engine.health.IsEligible("dead") {
		t.Error("degraded source must be eligible for fetches")
	}
}
