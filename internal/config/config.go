package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Health    HealthConfig    `mapstructure:"health"`
	Dedupe    DedupeConfig    `mapstructure:"dedupe"`
	Rate      RateConfig      `mapstructure:"rate"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
// Parameters: none.
// Returns:
//   - string: DSN for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type EngineConfig struct {
	DefaultDeadline  time.Duration `mapstructure:"default_deadline"`
	PerSourceTimeout time.Duration `mapstructure:"per_source_timeout"`
	PerSourceLimit   int           `mapstructure:"per_source_limit"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

type HealthConfig struct {
	DegradedAfter    int           `mapstructure:"degraded_after"`
	UnavailableAfter int           `mapstructure:"unavailable_after"`
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

type DedupeConfig struct {
	FuzzyThreshold float64       `mapstructure:"fuzzy_threshold"`
	FuzzyWindow    time.Duration `mapstructure:"fuzzy_window"`
}

type RateConfig struct {
	GlobalConcurrency int64                      `mapstructure:"global_concurrency"`
	DefaultClass      string                     `mapstructure:"default_class"`
	Jitter            float64                    `mapstructure:"jitter"`
	Classes           map[string]RateClassConfig `mapstructure:"classes"`
}

type RateClassConfig struct {
	Capacity     float64 `mapstructure:"capacity"`
	RefillPerSec float64 `mapstructure:"refill_per_sec"`
}

type SourcesConfig struct {
	Staging []StagingSourceConfig `mapstructure:"staging"`
	HTTPAPI []HTTPAPISourceConfig `mapstructure:"httpapi"`
	Browser []BrowserSourceConfig `mapstructure:"browser"`
}

type StagingSourceConfig struct {
	ID       string        `mapstructure:"id"`
	Count    int           `mapstructure:"count"`
	Latency  time.Duration `mapstructure:"latency"`
	FailMode string        `mapstructure:"fail_mode"`
}

type HTTPAPISourceConfig struct {
	ID         string            `mapstructure:"id"`
	BaseURL    string            `mapstructure:"base_url"`
	SearchPath string            `mapstructure:"search_path"`
	APIKeyEnv  string            `mapstructure:"api_key_env"`
	Params     map[string]string `mapstructure:"params"`
	PageSize   int               `mapstructure:"page_size"`
	RateClass  string            `mapstructure:"rate_class"`
	Experience bool              `mapstructure:"experience"`
}

// APIKey resolves the key from the configured environment variable so
// secrets never live in the config file.
// Parameters: none.
// Returns:
//   - string: key value, empty when unset.
func (c *HTTPAPISourceConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

type BrowserSourceConfig struct {
	ID        string `mapstructure:"id"`
	Site      string `mapstructure:"site"`
	PoolURL   string `mapstructure:"pool_url"`
	RateClass string `mapstructure:"rate_class"`
}

type SchedulerConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Interval string   `mapstructure:"interval"`
	Keywords []string `mapstructure:"keywords"`
	Location string   `mapstructure:"location"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobtide.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("engine.default_deadline", 2*time.Minute)
	v.SetDefault("engine.per_source_timeout", 45*time.Second)
	v.SetDefault("engine.per_source_limit", 100)
	v.SetDefault("engine.retry.max_attempts", 3)
	v.SetDefault("engine.retry.base_delay", 500*time.Millisecond)
	v.SetDefault("engine.retry.multiplier", 2.0)
	v.SetDefault("engine.retry.jitter", 0.2)
	v.SetDefault("health.degraded_after", 3)
	v.SetDefault("health.unavailable_after", 6)
	v.SetDefault("health.probe_interval", 5*time.Minute)
	v.SetDefault("health.probe_timeout", 15*time.Second)
	v.SetDefault("dedupe.fuzzy_threshold", 0.85)
	v.SetDefault("dedupe.fuzzy_window", 720*time.Hour)
	v.SetDefault("rate.global_concurrency", 8)
	v.SetDefault("rate.default_class", "standard")
	v.SetDefault("rate.jitter", 0.1)
	v.SetDefault("rate.classes.standard.capacity", 10)
	v.SetDefault("rate.classes.standard.refill_per_sec", 1)
	v.SetDefault("rate.classes.strict.capacity", 3)
	v.SetDefault("rate.classes.strict.refill_per_sec", 0.2)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 6h")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("server.port", "SERVER_PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
