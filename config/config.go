package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Matching  MatchingConfig
	Pricing   PricingConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Debug bool   `mapstructure:"debug"`
}

// MatchingConfig holds matching cascade configuration. The confidence
// threshold is the global default; organizations may override it.
type MatchingConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	BatchWorkers        int     `mapstructure:"batch_workers"`
	EnableDebugLogging  bool    `mapstructure:"enable_debug_logging"`
}

// PricingConfig holds totals and margin configuration
type PricingConfig struct {
	MarginThreshold float64 `mapstructure:"margin_threshold"`
	DefaultTaxRate  float64 `mapstructure:"default_tax_rate"`
}

// CacheConfig holds catalog snapshot cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP float64 `mapstructure:"per_ip"`
	Burst int     `mapstructure:"burst"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/quotedesk/")

	// Environment variable settings
	v.SetEnvPrefix("QUOTEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults (sqlite file for local development)
	v.SetDefault("database.dsn", "quotedesk.db")
	v.SetDefault("database.debug", false)

	// Matching defaults
	v.SetDefault("matching.confidence_threshold", 0.6)
	v.SetDefault("matching.batch_workers", 0)
	v.SetDefault("matching.enable_debug_logging", false)

	// Pricing defaults
	v.SetDefault("pricing.margin_threshold", 0.15)
	v.SetDefault("pricing.default_tax_rate", 0.0)

	// Cache defaults
	v.SetDefault("cache.ttl", "5m")

	// Rate limit defaults (requests per second per client IP)
	v.SetDefault("ratelimit.per_ip", 20)
	v.SetDefault("ratelimit.burst", 40)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/quotedesk.log")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set QUOTEDESK_DATABASE_DSN)")
	}

	if config.Matching.ConfidenceThreshold <= 0 || config.Matching.ConfidenceThreshold > 1 {
		return fmt.Errorf("matching confidence threshold must be in (0,1], got: %v", config.Matching.ConfidenceThreshold)
	}

	if config.Pricing.MarginThreshold < 0 || config.Pricing.MarginThreshold >= 1 {
		return fmt.Errorf("pricing margin threshold must be in [0,1), got: %v", config.Pricing.MarginThreshold)
	}

	if config.Pricing.DefaultTaxRate < 0 {
		return fmt.Errorf("default tax rate must not be negative, got: %v", config.Pricing.DefaultTaxRate)
	}

	if config.RateLimit.PerIP <= 0 {
		return fmt.Errorf("rate limit per_ip must be positive, got: %v", config.RateLimit.PerIP)
	}

	return nil
}
