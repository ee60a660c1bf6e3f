// Package scheduler wires up the cron jobs that periodically trigger a
// collection run and re-probe unavailable sources.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/service"
)

// Scheduler wraps robfig/cron and manages the collection loop.
type Scheduler struct {
	cron          *cron.Cron
	engine        *service.Engine
	prober        *service.Prober
	collectSpec   string // cron spec, e.g. "@every 6h"
	probeInterval time.Duration
	query         domain.Query
	logger        *logger.Logger
}

// New creates a Scheduler for periodic collections and health probes.
// Parameters:
//   - engine: collection engine to drive.
//   - prober: health prober; nil disables the probe job.
//   - collectSpec: cron spec for collection runs.
//   - probeInterval: interval between probe sweeps; 0 disables them.
//   - query: standing query each scheduled run uses.
//   - log: logger instance.
// Returns:
//   - *Scheduler: scheduler, not yet started.
func New(engine *service.Engine, prober *service.Prober, collectSpec string,
	probeInterval time.Duration, query domain.Query, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Scheduler{
		cron:          cron.New(),
		engine:        engine,
		prober:        prober,
		collectSpec:   collectSpec,
		probeInterval: probeInterval,
		query:         query,
		logger:        log,
	}
}

// Start registers the jobs and starts the scheduler. Also runs one
// collection immediately so results exist without waiting for the
// first tick.
// Parameters:
//   - ctx: context passed to every scheduled run.
// Returns:
//   - error: non-nil if a cron spec does not parse.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.collectSpec, func() {
		s.runCollection(ctx)
	}); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", s.collectSpec, err)
	}

	if s.prober != nil && s.probeInterval > 0 {
		spec := fmt.Sprintf("@every %s", s.probeInterval)
		if _, err := s.cron.AddFunc(spec, func() {
			s.prober.ProbeUnavailable(ctx)
		}); err != nil {
			return fmt.Errorf("cron.AddFunc(%q): %w", spec, err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logger.Fields{
		logger.FieldComponent: "scheduler",
		"spec":                s.collectSpec,
	}).Info("Scheduler started")

	// Run immediately on startup (non-blocking)
	go s.runCollection(ctx)

	return nil
}

// Stop shuts down the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.WithField(logger.FieldComponent, "scheduler").Info("Scheduler stopped")
}

// runCollection executes one collection run with the standing query.
// Each run gets a fresh deadline from the query template.
func (s *Scheduler) runCollection(ctx context.Context) {
	query := s.query
	query.Deadline = time.Time{} // let the engine apply its default deadline

	report, err := s.engine.Collect(ctx, query)
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldComponent: "scheduler",
		}).Error(ctx, "Scheduled collection failed: %v", err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "scheduler",
		logger.FieldRunID:     report.RunID,
		logger.FieldCount:     report.DedupedCount,
	}).Info(ctx, "Scheduled collection complete")
}
