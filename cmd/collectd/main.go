package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/jobtide/internal/config"
	"github.com/timmy/jobtide/internal/dedupe"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/health"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/rate"
	"github.com/timmy/jobtide/internal/repository"
	"github.com/timmy/jobtide/internal/scheduler"
	"github.com/timmy/jobtide/internal/service"
	"github.com/timmy/jobtide/internal/source"
	"github.com/timmy/jobtide/internal/source/browser"
	"github.com/timmy/jobtide/internal/source/httpapi"
	"github.com/timmy/jobtide/internal/source/staging"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "jobtide-collectd",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single collection and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize repositories
	dedupeRepo := repository.NewDedupeRepository(db)
	sourceRepo := repository.NewSourceRepository(db)

	// Optional redis fast path for exact fingerprint checks
	var prober dedupe.Prober
	if cfg.Redis.Enabled {
		client, err := repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			appLogger.WithError(err).Warn("Redis unavailable, continuing without fast path")
		} else {
			defer client.Close()
			prober = repository.NewFingerprintCache(client, cfg.Dedupe.FuzzyWindow)
		}
	}

	// Build core components
	healthReg := health.NewRegistry(health.Thresholds{
		DegradedAfter:    cfg.Health.DegradedAfter,
		UnavailableAfter: cfg.Health.UnavailableAfter,
	}, sourceRepo, appLogger)

	governor := rate.NewGovernor(&rate.Config{
		GlobalConcurrency: cfg.Rate.GlobalConcurrency,
		Classes:           rateClasses(cfg.Rate.Classes),
		DefaultClass:      cfg.Rate.DefaultClass,
		JitterFrac:        cfg.Rate.Jitter,
	})

	sources := source.NewRegistry(sourceRepo, appLogger)

	cache := dedupe.NewCache(dedupeRepo, prober, &dedupe.Config{
		FuzzyThreshold: cfg.Dedupe.FuzzyThreshold,
		FuzzyWindow:    cfg.Dedupe.FuzzyWindow,
	}, appLogger)

	engine := service.NewEngine(sources, governor, healthReg, cache,
		service.RetryPolicy{
			MaxAttempts: cfg.Engine.Retry.MaxAttempts,
			BaseDelay:   cfg.Engine.Retry.BaseDelay,
			Multiplier:  cfg.Engine.Retry.Multiplier,
			JitterFrac:  cfg.Engine.Retry.Jitter,
		},
		&service.EngineConfig{
			DefaultDeadline:  cfg.Engine.DefaultDeadline,
			PerSourceTimeout: cfg.Engine.PerSourceTimeout,
			PerSourceLimit:   cfg.Engine.PerSourceLimit,
		}, appLogger)

	// Register configured adapters
	if err := registerSources(engine, cfg); err != nil {
		appLogger.WithError(err).Fatal("Failed to register sources")
	}

	// Restore persisted enabled flags and health counters
	if rows, err := sourceRepo.GetAll(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to load persisted source state")
	} else {
		sources.RehydrateEnabled(rows)
		healthReg.Rehydrate(rows)
	}

	standingQuery := domain.Query{
		Keywords: cfg.Scheduler.Keywords,
		Location: cfg.Scheduler.Location,
	}

	if *once {
		report, err := engine.Collect(ctx, standingQuery)
		if err != nil {
			appLogger.WithError(err).Fatal("Collection failed")
		}
		appLogger.WithFields(logger.Fields{
			logger.FieldRunID: report.RunID,
			"raw":             report.RawCount,
			"deduped":         report.DedupedCount,
		}).Info("Collection complete")
		return
	}

	healthProber := service.NewProber(sources, healthReg, cfg.Health.ProbeTimeout, appLogger)

	sched := scheduler.New(engine, healthProber, cfg.Scheduler.Interval,
		cfg.Health.ProbeInterval, standingQuery, appLogger)
	if err := sched.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start scheduler")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	cancel()
	sched.Stop()
}

// rateClasses converts config rate classes to governor classes.
func rateClasses(classes map[string]config.RateClassConfig) map[string]rate.ClassConfig {
	out := make(map[string]rate.ClassConfig, len(classes))
	for name, c := range classes {
		out[name] = rate.ClassConfig{Capacity: c.Capacity, RefillPerSec: c.RefillPerSec}
	}
	return out
}

// registerSources builds every configured adapter and registers it with
// the engine.
func registerSources(engine *service.Engine, cfg *config.Config) error {
	for _, sc := range cfg.Sources.Staging {
		adapter := staging.NewAdapter(staging.Config{
			ID:       sc.ID,
			Count:    sc.Count,
			Latency:  sc.Latency,
			FailMode: sc.FailMode,
		})
		if err := engine.RegisterSource(source.Descriptor{Adapter: adapter, Enabled: true}); err != nil {
			return err
		}
	}

	for _, hc := range cfg.Sources.HTTPAPI {
		adapter := httpapi.NewAdapter(httpapi.Config{
			ID:         hc.ID,
			BaseURL:    hc.BaseURL,
			SearchPath: hc.SearchPath,
			APIKey:     hc.APIKey(),
			Params:     hc.Params,
			PageSize:   hc.PageSize,
			RateClass:  hc.RateClass,
			Experience: hc.Experience,
		})
		if err := engine.RegisterSource(source.Descriptor{
			Adapter: adapter, RateClass: hc.RateClass, Enabled: true,
		}); err != nil {
			return err
		}
	}

	for _, bc := range cfg.Sources.Browser {
		adapter := browser.NewAdapter(browser.Config{
			ID:         bc.ID,
			SidecarURL: bc.PoolURL,
			Site:       bc.Site,
			RateClass:  bc.RateClass,
		})
		if err := engine.RegisterSource(source.Descriptor{
			Adapter: adapter, RateClass: bc.RateClass, Enabled: true,
		}); err != nil {
			return err
		}
	}

	return nil
}
