package service

import (
	"context"
	"time"

	"github.com/timmy/jobtide/internal/health"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/source"
)

// Prober drives half-open recovery: unavailable sources are excluded
// from full fetches, so a lightweight health-check loop is the only way
// back. A probe success runs through the same state machine as a fetch
// outcome, which moves the source from unavailable to degraded only.
type Prober struct {
	sources *source.Registry
	health  *health.Registry
	timeout time.Duration
	logger  *logger.Logger
}

// NewProber creates a health prober.
// Parameters:
//   - sources: source catalog.
//   - healthReg: health registry the probes report into.
//   - timeout: per-probe timeout; <=0 uses 15 seconds.
//   - log: logger instance.
// Returns:
//   - *Prober: initialized prober.
func NewProber(sources *source.Registry, healthReg *health.Registry, timeout time.Duration, log *logger.Logger) *Prober {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Prober{
		sources: sources,
		health:  healthReg,
		timeout: timeout,
		logger:  log,
	}
}

// ProbeUnavailable health-checks every unavailable source once.
// Parameters:
//   - ctx: context bounding the probe batch.
// Returns:
//   - int: number of sources that answered their probe.
func (p *Prober) ProbeUnavailable(ctx context.Context) int {
	recovered := 0
	for _, id := range p.health.Unavailable() {
		desc, ok := p.sources.Get(id)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := desc.Adapter.HealthCheck(probeCtx)
		cancel()

		status := p.health.Record(context.WithoutCancel(ctx), id, err)
		if err == nil {
			recovered++
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldSource: id,
				logger.FieldStatus: string(status.Availability),
			}).Info("Probe succeeded, source recovering")
		} else {
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldSource: id,
			}).WithError(err).Debug("Probe failed, source stays unavailable")
		}
	}
	return recovered
}
