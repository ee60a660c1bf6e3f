package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// A missing config file on the default search path must not be fatal.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("database.driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Dedupe.FuzzyThreshold != 0.85 {
		t.Errorf("dedupe.fuzzy_threshold = %v, want 0.85", cfg.Dedupe.FuzzyThreshold)
	}
	if cfg.Dedupe.FuzzyWindow != 720*time.Hour {
		t.Errorf("dedupe.fuzzy_window = %v, want 720h", cfg.Dedupe.FuzzyWindow)
	}
	if cfg.Health.DegradedAfter != 3 || cfg.Health.UnavailableAfter != 6 {
		t.Errorf("health thresholds = %d/%d, want 3/6",
			cfg.Health.DegradedAfter, cfg.Health.UnavailableAfter)
	}
	if cfg.Rate.GlobalConcurrency != 8 {
		t.Errorf("rate.global_concurrency = %d, want 8", cfg.Rate.GlobalConcurrency)
	}
	if got := cfg.Rate.Classes["standard"]; got.Capacity != 10 || got.RefillPerSec != 1 {
		t.Errorf("rate.classes.standard = %+v, want capacity 10 refill 1", got)
	}
	if cfg.Engine.Retry.MaxAttempts != 3 {
		t.Errorf("engine.retry.max_attempts = %d, want 3", cfg.Engine.Retry.MaxAttempts)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
database:
  driver: postgres
  host: db.internal
  port: 5433
  user: jobtide
  password: secret
  dbname: jobtide
engine:
  per_source_limit: 25
sources:
  staging:
    - id: dev
      count: 12
      latency: 50ms
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.PerSourceLimit != 25 {
		t.Errorf("engine.per_source_limit = %d, want 25", cfg.Engine.PerSourceLimit)
	}
	if len(cfg.Sources.Staging) != 1 {
		t.Fatalf("staging sources = %d, want 1", len(cfg.Sources.Staging))
	}
	sc := cfg.Sources.Staging[0]
	if sc.ID != "dev" || sc.Count != 12 || sc.Latency != 50*time.Millisecond {
		t.Errorf("staging source = %+v, want dev/12/50ms", sc)
	}

	// File values merge over defaults, not replace them.
	if cfg.Dedupe.FuzzyThreshold != 0.85 {
		t.Errorf("default fuzzy threshold lost: %v", cfg.Dedupe.FuzzyThreshold)
	}
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/test.db"}
	if got := sqlite.DSN(); got != "./data/test.db" {
		t.Errorf("sqlite DSN = %q", got)
	}

	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", DBName: "jobs", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=jobs sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("postgres DSN = %q, want %q", got, want)
	}
}

func TestHTTPAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_SOURCE_KEY", "sekrit")

	src := HTTPAPISourceConfig{APIKeyEnv: "TEST_SOURCE_KEY"}
	if got := src.APIKey(); got != "sekrit" {
		t.Errorf("APIKey() = %q, want sekrit", got)
	}

	none := HTTPAPISourceConfig{}
	if got := none.APIKey(); got != "" {
		t.Errorf("APIKey() with no env var = %q, want empty", got)
	}
}
