package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/jobtide/internal/api"
	"github.com/timmy/jobtide/internal/api/middleware"
	"github.com/timmy/jobtide/internal/config"
	"github.com/timmy/jobtide/internal/dedupe"
	"github.com/timmy/jobtide/internal/health"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/rate"
	"github.com/timmy/jobtide/internal/repository"
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
		ServiceName: "jobtide-api",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx := context.Background()

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

	// Setup router
	router := api.SetupRouter(engine, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
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
