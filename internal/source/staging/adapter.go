package staging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/source"
)

// Failure modes a staging source can be configured to exhibit.
const (
	FailNone        = ""
	FailTransient   = "transient"
	FailAuth        = "auth"
	FailStructural  = "structural"
	FailRateLimited = "rate_limited"
)

// Config drives one synthetic source. Deterministic by construction:
// the same config always yields the same listings, which makes staging
// environments and dedupe behavior reproducible.
type Config struct {
	ID       string
	Count    int           // listings per fetch
	Latency  time.Duration // simulated fetch latency
	FailMode string        // FailNone or one of the Fail* modes
}

// Adapter is a deterministic synthetic source for development and
// infrastructure testing. No network involved.
type Adapter struct {
	cfg Config
}

// NewAdapter creates a staging adapter.
// Parameters:
//   - cfg: synthetic source configuration.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	return &Adapter{cfg: cfg}
}

// ID returns the stable identifier for this source.
func (a *Adapter) ID() string {
	return "staging:" + a.cfg.ID
}

// Capabilities returns the adapter's static capability set.
func (a *Adapter) Capabilities() source.Capabilities {
	latency := source.LatencyFast
	if a.cfg.Latency >= time.Second {
		latency = source.LatencySlow
	}
	return source.Capabilities{
		Location:     true,
		Experience:   true,
		LatencyClass: latency,
	}
}

// Fetch produces deterministic synthetic listings after the configured
// latency, or fails according to the configured failure mode.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: collection query; keywords seed the generated titles.
// Returns:
//   - []domain.ListingRecord: deterministic listings.
//   - error: the configured failure, if any.
func (a *Adapter) Fetch(ctx context.Context, query domain.Query) ([]domain.ListingRecord, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	if err := a.fail(); err != nil {
		return nil, err
	}

	count := a.cfg.Count
	if query.PerSourceLimit > 0 && query.PerSourceLimit < count {
		count = query.PerSourceLimit
	}

	keyword := "engineer"
	if len(query.Keywords) > 0 {
		keyword = strings.ToLower(query.Keywords[0])
	}

	now := time.Now()
	records := make([]domain.ListingRecord, 0, count)
	for i := 0; i < count; i++ {
		externalID := fmt.Sprintf("%s-%04d", a.cfg.ID, i)
		records = append(records, domain.ListingRecord{
			SourceID:     a.ID(),
			ExternalID:   externalID,
			Title:        fmt.Sprintf("Staging %s %d", keyword, i),
			Organization: fmt.Sprintf("Synthetic Org %d", seed(externalID)%7),
			Location:     query.Location,
			Body:         fmt.Sprintf("Synthetic listing %s generated for staging.", externalID),
			URL:          fmt.Sprintf("https://staging.invalid/%s/jobs/%s", a.cfg.ID, externalID),
			DiscoveredAt: now,
		})
	}
	return records, nil
}

// HealthCheck succeeds unless the failure mode is auth or transient.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: the configured failure, if any.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch a.cfg.FailMode {
	case FailAuth, FailTransient:
		return a.fail()
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cfg.Latency):
		return nil
	}
}

func (a *Adapter) fail() error {
	switch a.cfg.FailMode {
	case FailTransient:
		return errors.New("staging: simulated transient failure")
	case FailAuth:
		return &domain.AuthError{SourceID: a.ID(), Err: errors.New("staging: simulated credential failure")}
	case FailStructural:
		return &domain.StructuralError{SourceID: a.ID(), Detail: "staging: simulated parse failure"}
	case FailRateLimited:
		return &domain.RateLimitError{SourceID: a.ID(), RetryAfter: time.Minute, Err: errors.New("staging: simulated backoff")}
	default:
		return nil
	}
}

func seed(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
