// Package config provides configuration management for the dashboard.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	apperrors "alertdash/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	UI       UIConfig       `mapstructure:"ui"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// APIConfig configures the dashboard backend client.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`

	// Consecutive failures that open the circuit in watch mode; 0 disables it.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// AlertsConfig configures the alert engine and orchestrator.
type AlertsConfig struct {
	MutationPolicy string `mapstructure:"mutation_policy"` // rollback, pessimistic, legacy
	BadgeScope     string `mapstructure:"badge_scope"`     // badge, table
}

// SnapshotConfig configures market snapshot refresh and caching.
type SnapshotConfig struct {
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheKey        string        `mapstructure:"cache_key"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the Redis connection used by the snapshot cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// NotifyConfig configures notifications for alerts that start triggering
// while watching.
type NotifyConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Bell           bool          `mapstructure:"bell"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// UIConfig holds terminal output configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	TimeFormat   string `mapstructure:"time_format"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/alertdash"
	}
	return filepath.Join(home, ".config", "alertdash")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Dir = DefaultConfigDir()
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.breaker_threshold", 5)
	v.SetDefault("api.breaker_cooldown", 30*time.Second)

	v.SetDefault("alerts.mutation_policy", "rollback")
	v.SetDefault("alerts.badge_scope", "badge")

	v.SetDefault("snapshot.refresh_schedule", "@every 30s")
	v.SetDefault("snapshot.cache_enabled", false)
	v.SetDefault("snapshot.cache_key", "alertdash:snapshot")
	v.SetDefault("snapshot.cache_ttl", 15*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.db_path", filepath.Join(configDir, "alertdash.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "alertdash.log"))
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 14)

	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.bell", false)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_timeout", 10*time.Second)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.time_format", "2006-01-02 15:04")
}

// loadDotEnv reads .env from the config directory, then from the working
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALERTDASH_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ALERTDASH_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("ALERTDASH_MUTATION_POLICY"); v != "" {
		cfg.Alerts.MutationPolicy = v
	}
	if v := os.Getenv("ALERTDASH_BADGE_SCOPE"); v != "" {
		cfg.Alerts.BadgeScope = v
	}
	if v := os.Getenv("ALERTDASH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Snapshot.CacheEnabled = true
	}
	if v := os.Getenv("ALERTDASH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ALERTDASH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALERTDASH_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("ALERTDASH_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("ALERTDASH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: api.base_url %q must be an absolute URL", apperrors.ErrConfigInvalid, c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", apperrors.ErrConfigInvalid)
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("%w: api.retry_attempts must be at least 1", apperrors.ErrConfigInvalid)
	}
	if c.API.BreakerThreshold < 0 {
		return fmt.Errorf("%w: api.breaker_threshold must not be negative", apperrors.ErrConfigInvalid)
	}
	if c.API.BreakerThreshold > 0 && c.API.BreakerCooldown <= 0 {
		return fmt.Errorf("%w: api.breaker_cooldown must be positive", apperrors.ErrConfigInvalid)
	}

	switch c.Alerts.MutationPolicy {
	case "rollback", "pessimistic", "legacy":
	default:
		return fmt.Errorf("%w: alerts.mutation_policy %q (must be rollback, pessimistic or legacy)",
			apperrors.ErrConfigInvalid, c.Alerts.MutationPolicy)
	}
	switch c.Alerts.BadgeScope {
	case "badge", "table":
	default:
		return fmt.Errorf("%w: alerts.badge_scope %q (must be badge or table)",
			apperrors.ErrConfigInvalid, c.Alerts.BadgeScope)
	}

	if _, err := cron.ParseStandard(c.Snapshot.RefreshSchedule); err != nil {
		return fmt.Errorf("%w: snapshot.refresh_schedule: %v", apperrors.ErrConfigInvalid, err)
	}
	if c.Snapshot.CacheEnabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when the snapshot cache is enabled", apperrors.ErrConfigInvalid)
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: notify.webhook_url %q must be an absolute URL", apperrors.ErrConfigInvalid, c.Notify.WebhookURL)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", apperrors.ErrConfigInvalid, c.Server.Port)
	}

	return nil
}
