package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ClassConfig describes one rate class: how hard a class of sources
// tolerates being queried.
type ClassConfig struct {
	Capacity     float64 // burst size
	RefillPerSec float64 // sustained rate
}

// Config holds governor settings.
type Config struct {
	GlobalConcurrency int64                  // concurrency ceiling across all sources
	Classes           map[string]ClassConfig // named rate classes
	DefaultClass      string                 // class for sources without one
	JitterFrac        float64                // bucket wait jitter
}

// DefaultConfig returns conservative governor defaults.
func DefaultConfig() *Config {
	return &Config{
		GlobalConcurrency: 4,
		Classes: map[string]ClassConfig{
			"default": {Capacity: 5, RefillPerSec: 1},
		},
		DefaultClass: "default",
	}
}

// Permit is a held admission: one global slot plus one source token.
// Release returns the global slot; tokens are consumed, not returned.
type Permit struct {
	release func()
	once    sync.Once
}

// Release returns the permit's global slot. Safe to call more than once.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

// Governor enforces both limits at once: a global concurrency ceiling
// protecting shared resources (e.g. a fixed browser-instance pool) and
// a per-source token bucket reflecting each source's tolerance.
// Admission under global saturation is FIFO across waiting sources:
// the weighted semaphore grants slots to waiters in arrival order.
type Governor struct {
	global  *semaphore.Weighted
	cfg     *Config
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	classes map[string]string // sourceID -> class name
}

// NewGovernor creates a governor from the given configuration.
// Parameters:
//   - cfg: governor configuration; nil uses DefaultConfig.
// Returns:
//   - *Governor: initialized governor.
func NewGovernor(cfg *Config) *Governor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = 1
	}
	return &Governor{
		global:  semaphore.NewWeighted(cfg.GlobalConcurrency),
		cfg:     cfg,
		buckets: make(map[string]*TokenBucket),
		classes: make(map[string]string),
	}
}

// AssignClass binds a source to a named rate class. Sources without an
// assignment use the default class.
// Parameters:
//   - sourceID: source identifier.
//   - class: rate class name; unknown names fall back to the default.
func (g *Governor) AssignClass(sourceID, class string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.classes[sourceID] = class
}

// bucket returns the per-source singleton bucket, creating it lazily
// from the source's rate class.
func (g *Governor) bucket(sourceID string) *TokenBucket {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.buckets[sourceID]; ok {
		return b
	}

	class := g.classes[sourceID]
	cc, ok := g.cfg.Classes[class]
	if !ok {
		cc, ok = g.cfg.Classes[g.cfg.DefaultClass]
		if !ok {
			cc = ClassConfig{Capacity: 5, RefillPerSec: 1}
		}
	}
	b := NewTokenBucket(cc.Capacity, cc.RefillPerSec, g.cfg.JitterFrac)
	g.buckets[sourceID] = b
	return b
}

// Acquire blocks until both a source token and a global slot are held,
// or the context ends.
//
// The token is taken before the global slot so a source that is out of
// budget never occupies the shared ceiling while it waits to refill.
// Parameters:
//   - ctx: context bounding the wait.
//   - sourceID: source requesting admission.
// Returns:
//   - *Permit: release handle for the global slot.
//   - error: ctx.Err() when the context ended before admission.
func (g *Governor) Acquire(ctx context.Context, sourceID string) (*Permit, error) {
	if !g.bucket(sourceID).Take(ctx) {
		return nil, ctx.Err()
	}
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{release: func() { g.global.Release(1) }}, nil
}

// Penalize honors an explicit backoff signal from a source: its bucket
// is drained and refill suspended for the cooldown.
// Parameters:
//   - sourceID: source that signalled backoff.
//   - cooldown: refill suspension; <=0 uses one minute.
func (g *Governor) Penalize(sourceID string, cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	g.bucket(sourceID).Drain(cooldown)
}
